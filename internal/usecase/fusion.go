package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

// Thresholds are strict: confidence must exceed them to trade.
type Thresholds struct {
	BuyAbove  float64
	SellBelow float64
}

func ThresholdsFrom(cfg *config.Config) Thresholds {
	return Thresholds{
		BuyAbove:  cfg.DecisionThresholds.BuyAbove,
		SellBelow: cfg.DecisionThresholds.SellBelow,
	}
}

var reasoningTags = map[string]string{
	config.AnalyzerTechnical:   "TA",
	config.AnalyzerStructural:  "SMC",
	config.AnalyzerFundamental: "FA",
}

// Decide fuses scores into a single decision. Every configured analyzer counts
// with its full weight; a missing score is a neutral 0. Unconfigured scores
// are ignored. The function is pure.
func Decide(symbol string, scores map[string]models.AnalyzerScore, weights models.WeightSet, th Thresholds, now time.Time) models.Decision {
	order := reasoningOrder(weights)

	var b strings.Builder
	fmt.Fprintf(&b, "SYNTHESIS FOR %s:\n", symbol)

	confidence := 0.0
	values := make(map[string]float64, len(order))
	for _, name := range order {
		s, ok := scores[name]
		v := 0.0
		narrative := "No signal."
		if ok {
			v = s.Value
			narrative = s.Narrative
		}
		confidence += v * weights[name]
		values[name] = v
		fmt.Fprintf(&b, "  [%s]: %s\n", tag(name), narrative)
	}
	fmt.Fprintf(&b, "  >> FINAL CONFIDENCE: %.3f", confidence)

	return models.Decision{
		Symbol:     symbol,
		Action:     actionFor(confidence, th),
		Confidence: confidence,
		Reasoning:  b.String(),
		Scores:     values,
		Timestamp:  now,
	}
}

func actionFor(confidence float64, th Thresholds) models.Action {
	switch {
	case confidence > th.BuyAbove:
		return models.ActionBuy
	case confidence < th.SellBelow:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// reasoningOrder lists known analyzers first in their fixed order, then any
// other weighted names lexically.
func reasoningOrder(weights models.WeightSet) []string {
	out := make([]string, 0, len(weights))
	seen := make(map[string]bool, len(weights))
	for _, k := range config.KnownAnalyzers {
		if _, ok := weights[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range weights {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func tag(name string) string {
	if t, ok := reasoningTags[name]; ok {
		return t
	}
	return strings.ToUpper(name)
}

// DecisionEngine wraps Decide with the status side effect.
type DecisionEngine struct {
	sink    domrepo.StatusSink
	metrics domrepo.Metrics
	log     *logger.Logger
	aiName  string
	now     func() time.Time
}

func NewDecisionEngine(cfg *config.Config, sink domrepo.StatusSink, metrics domrepo.Metrics, log *logger.Logger) *DecisionEngine {
	return &DecisionEngine{
		sink:    sink,
		metrics: metrics,
		log:     log,
		aiName:  cfg.SystemIdentity.Name,
		now:     time.Now,
	}
}

// Evaluate decides and publishes a status snapshot. A sink failure is logged
// and never changes the returned decision.
func (e *DecisionEngine) Evaluate(ctx context.Context, symbol string, scores map[string]models.AnalyzerScore, weights models.WeightSet, th Thresholds) models.Decision {
	d := Decide(symbol, scores, weights, th, e.now().UTC())

	e.log.Info("decision",
		logger.String("symbol", symbol),
		logger.String("action", string(d.Action)),
		logger.Float64("confidence", d.Confidence),
		logger.String("reasoning", d.Reasoning))
	if e.metrics != nil {
		e.metrics.RecordDecision(symbol, d.Action, d.Confidence)
	}

	if e.sink != nil {
		if err := e.sink.Publish(ctx, e.snapshot(d)); err != nil {
			e.log.Critical("status write failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return d
}

func (e *DecisionEngine) snapshot(d models.Decision) models.StatusSnapshot {
	rounded := make(map[string]float64, len(d.Scores))
	for k, v := range d.Scores {
		rounded[k] = round3(v)
	}
	return models.StatusSnapshot{
		Timestamp:  d.Timestamp,
		AIName:     e.aiName,
		Status:     "Thinking",
		Symbol:     d.Symbol,
		Action:     d.Action,
		Confidence: round3(d.Confidence),
		Reasoning:  d.Reasoning,
		Scores:     rounded,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
