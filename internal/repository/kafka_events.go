package repository

import (
	"context"
	"time"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	pkgkafka "FusionTrader/pkg/kafka"
)

// EventTopics names the topics decisions and executions go to.
type EventTopics struct {
	Decisions  string
	Executions string
}

// KafkaEventPublisher publishes decision and execution events keyed by
// symbol. It also serves as the log collector's publisher.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topics   EventTopics
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topics EventTopics) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topics: topics}
}

type decisionEvent struct {
	CycleID    string             `json:"cycle_id"`
	Symbol     string             `json:"symbol"`
	Action     models.Action      `json:"action"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
	Reasoning  string             `json:"reasoning"`
	Timestamp  time.Time          `json:"timestamp"`
}

type executionEvent struct {
	CycleID    string        `json:"cycle_id"`
	Symbol     string        `json:"symbol"`
	Action     models.Action `json:"action"`
	Ticket     int64         `json:"ticket"`
	Entry      float64       `json:"entry"`
	StopLoss   float64       `json:"sl"`
	TakeProfit float64       `json:"tp"`
	Volume     float64       `json:"volume"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`
}

func (p *KafkaEventPublisher) PublishDecision(ctx context.Context, cycleID string, d models.Decision) error {
	return p.producer.Publish(ctx, p.topics.Decisions, []byte(d.Symbol), decisionEvent{
		CycleID:    cycleID,
		Symbol:     d.Symbol,
		Action:     d.Action,
		Confidence: d.Confidence,
		Scores:     d.Scores,
		Reasoning:  d.Reasoning,
		Timestamp:  d.Timestamp,
	})
}

func (p *KafkaEventPublisher) PublishExecution(ctx context.Context, cycleID string, d models.Decision, r models.ExecutionResult) error {
	return p.producer.Publish(ctx, p.topics.Executions, []byte(d.Symbol), executionEvent{
		CycleID:    cycleID,
		Symbol:     d.Symbol,
		Action:     d.Action,
		Ticket:     r.Order.Ticket,
		Entry:      r.Plan.Entry,
		StopLoss:   r.Plan.StopLoss,
		TakeProfit: r.Plan.TakeProfit,
		Volume:     r.Plan.Volume,
		Confidence: d.Confidence,
		Timestamp:  d.Timestamp,
	})
}

// PublishMessage implements logger.Publisher.
func (p *KafkaEventPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
