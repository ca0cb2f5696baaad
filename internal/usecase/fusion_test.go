package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	"FusionTrader/pkg/logger"
)

var (
	defaultThresholds = Thresholds{BuyAbove: 0.55, SellBelow: -0.55}
	fixedNow          = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func score(name string, v float64) models.AnalyzerScore {
	return models.AnalyzerScore{Name: name, Value: v, Narrative: name + " view", Status: models.ScoreOK}
}

func TestDecideThresholdsAreStrict(t *testing.T) {
	weights := models.WeightSet{"technical": 1.0, "structural": 0, "fundamental": 0}
	cases := []struct {
		value float64
		want  models.Action
	}{
		{0.56, models.ActionBuy},
		{-0.56, models.ActionSell},
		{0.54, models.ActionHold},
		{0.55, models.ActionHold},
		{-0.55, models.ActionHold},
	}
	for _, tc := range cases {
		scores := map[string]models.AnalyzerScore{
			"technical":   score("technical", tc.value),
			"structural":  score("structural", 0),
			"fundamental": score("fundamental", 0),
		}
		d := Decide("EURUSD", scores, weights, defaultThresholds, fixedNow)
		assert.Equal(t, tc.want, d.Action, "confidence %v", tc.value)
		assert.InDelta(t, tc.value, d.Confidence, 1e-12)
	}
}

func TestDecideWorkedExample(t *testing.T) {
	weights := models.WeightSet{"technical": 0.5, "structural": 0.3, "fundamental": 0.2}
	scores := map[string]models.AnalyzerScore{
		"fundamental": {Name: "fundamental", Value: -0.1, Narrative: "EUR sentiment score: 0.10; USD score: 0.20."},
		"technical":   {Name: "technical", Value: 0.8, Narrative: "Model predicts 90.0% chance of upward movement."},
		"structural":  {Name: "structural", Value: 0.2, Narrative: "Market structure is consolidating with no clear bias."},
	}

	d := Decide("EURUSD", scores, weights, defaultThresholds, fixedNow)

	assert.InDelta(t, 0.44, d.Confidence, 1e-12)
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Equal(t, map[string]float64{"technical": 0.8, "structural": 0.2, "fundamental": -0.1}, d.Scores)
	assert.Equal(t, fixedNow, d.Timestamp)

	want := "SYNTHESIS FOR EURUSD:\n" +
		"  [TA]: Model predicts 90.0% chance of upward movement.\n" +
		"  [SMC]: Market structure is consolidating with no clear bias.\n" +
		"  [FA]: EUR sentiment score: 0.10; USD score: 0.20.\n" +
		"  >> FINAL CONFIDENCE: 0.440"
	assert.Equal(t, want, d.Reasoning)
}

func TestDecideMissingScoreIsNeutralNotRenormalized(t *testing.T) {
	weights := models.WeightSet{"technical": 0.5, "structural": 0.5}
	d := Decide("EURUSD", map[string]models.AnalyzerScore{"technical": score("technical", 1.0)}, weights, defaultThresholds, fixedNow)

	assert.InDelta(t, 0.5, d.Confidence, 1e-12)
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Equal(t, 0.0, d.Scores["structural"])
	assert.Contains(t, d.Reasoning, "[SMC]: No signal.")
}

func TestDecideIgnoresUnconfiguredScores(t *testing.T) {
	weights := models.WeightSet{"technical": 1.0}
	scores := map[string]models.AnalyzerScore{
		"technical":   score("technical", 0.2),
		"fundamental": score("fundamental", 1.0),
	}
	d := Decide("EURUSD", scores, weights, defaultThresholds, fixedNow)
	assert.InDelta(t, 0.2, d.Confidence, 1e-12)
	assert.NotContains(t, d.Scores, "fundamental")
}

func TestDecideIsDeterministic(t *testing.T) {
	weights := models.WeightSet{"technical": 0.4, "structural": 0.35, "fundamental": 0.25}
	scores := map[string]models.AnalyzerScore{
		"technical":   score("technical", 0.7),
		"structural":  score("structural", -0.3),
		"fundamental": score("fundamental", 0.9),
	}
	first := Decide("GBPUSD", scores, weights, defaultThresholds, fixedNow)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Decide("GBPUSD", scores, weights, defaultThresholds, fixedNow))
	}
}

func TestEvaluatePublishesRoundedSnapshot(t *testing.T) {
	cfg := parseConfig(t, orchestratorYAML)
	sink := &captureSink{}
	e := NewDecisionEngine(cfg, sink, nil, logger.NewNop())
	e.now = func() time.Time { return fixedNow }

	weights := models.WeightSet{"technical": 1.0}
	d := e.Evaluate(context.Background(), "EURUSD", map[string]models.AnalyzerScore{"technical": score("technical", 0.12345)}, weights, defaultThresholds)

	require.Len(t, sink.snapshots, 1)
	snap := sink.snapshots[0]
	assert.Equal(t, "Seraph", snap.AIName)
	assert.Equal(t, "Thinking", snap.Status)
	assert.Equal(t, 0.123, snap.Scores["technical"])
	assert.Equal(t, d.Reasoning, snap.Reasoning)
	assert.Equal(t, fixedNow, snap.Timestamp)
}

func TestEvaluateSinkFailureDoesNotChangeDecision(t *testing.T) {
	cfg := parseConfig(t, orchestratorYAML)
	weights := models.WeightSet{"technical": 1.0}
	scores := map[string]models.AnalyzerScore{"technical": score("technical", 0.9)}

	ok := NewDecisionEngine(cfg, &captureSink{}, nil, logger.NewNop())
	bad := NewDecisionEngine(cfg, &captureSink{err: errors.New("disk full")}, nil, logger.NewNop())
	ok.now = func() time.Time { return fixedNow }
	bad.now = ok.now

	assert.Equal(t,
		ok.Evaluate(context.Background(), "EURUSD", scores, weights, defaultThresholds),
		bad.Evaluate(context.Background(), "EURUSD", scores, weights, defaultThresholds))
}
