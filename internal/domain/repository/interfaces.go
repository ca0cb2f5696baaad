package repository

import (
	"context"
	"time"

	"FusionTrader/internal/domain/models"
)

// Journal is the append-only trade journal.
type Journal interface {
	// Append persists one entry. A nil return means the entry is durable.
	Append(ctx context.Context, e models.JournalEntry) error
	// ReadAll returns every entry in append order. Unreadable or corrupted
	// storage yields an empty slice, never an error.
	ReadAll(ctx context.Context) []models.JournalEntry
}

// WeightStore persists the strategy weights.
type WeightStore interface {
	Load(ctx context.Context) (models.WeightSet, error)
	// Save replaces the stored set atomically.
	Save(ctx context.Context, ws models.WeightSet) error
}

// StatusSink receives a snapshot for every decision. Best-effort.
type StatusSink interface {
	Publish(ctx context.Context, s models.StatusSnapshot) error
}

// EvaluationMarker records when the last successful tuning pass happened.
type EvaluationMarker interface {
	Mark(ctx context.Context, at time.Time) error
	Last(ctx context.Context) (time.Time, bool)
}

// ExecutionVenue places orders.
type ExecutionVenue interface {
	SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error)
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	SendOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
}

// DealHistory returns realized deals in [from, to].
type DealHistory interface {
	HistoryDeals(ctx context.Context, from, to time.Time) ([]models.DealOutcome, error)
}

// OutcomeStore persists deal outcomes ingested from the broker bridge.
type OutcomeStore interface {
	DealHistory
	StoreDeal(ctx context.Context, d models.DealOutcome) error
}

// EventPublisher ships decisions and executions downstream. Best-effort.
type EventPublisher interface {
	PublishDecision(ctx context.Context, cycleID string, d models.Decision) error
	PublishExecution(ctx context.Context, cycleID string, d models.Decision, r models.ExecutionResult) error
	Close() error
}

// Metrics records trading-loop telemetry.
type Metrics interface {
	RecordDecision(symbol string, action models.Action, confidence float64)
	RecordOrder(symbol string, success bool)
	RecordTune(outcome string)
	RecordWeights(ws models.WeightSet)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
