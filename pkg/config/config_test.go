package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
strategy_weights:
  technical: 0.5
  structural: 0.3
  fundamental: 0.2
trading_parameters:
  symbols_to_trade: [EURUSD, GBPUSD]
venue:
  bridge_url: http://bridge.local
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 0.55, c.DecisionThresholds.BuyAbove)
	assert.Equal(t, -0.55, c.DecisionThresholds.SellBelow)
	assert.Equal(t, 0.01, c.TradingParameters.LotSize)
	assert.Equal(t, 5*time.Minute, c.TradingParameters.CycleInterval)
	assert.Equal(t, 14, c.DynamicRiskManagement.ATRPeriod)
	assert.Equal(t, 1.5, c.DynamicRiskManagement.SLATRMultiplier)
	assert.Equal(t, 3.0, c.DynamicRiskManagement.TPATRMultiplier)
	assert.Equal(t, "trade_journal.jsonl", c.EvaluatorSettings.JournalFile)
	assert.Equal(t, 10, c.EvaluatorSettings.EvaluationPeriodTrades)
	assert.Equal(t, "paper", c.Venue.Type)
	assert.Equal(t, []string{"technical", "structural", "fundamental"}, c.AnalyzerOrder())
}

func TestParseOverridesDefaults(t *testing.T) {
	doc := minimalYAML + `
decision_thresholds:
  buy_above: 0.6
  sell_below: -0.4
dynamic_risk_management:
  atr_period: 10
`
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 0.6, c.DecisionThresholds.BuyAbove)
	assert.Equal(t, -0.4, c.DecisionThresholds.SellBelow)
	assert.Equal(t, 10, c.DynamicRiskManagement.ATRPeriod)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cases := map[string]map[string]float64{
		"sum below one":    {"technical": 0.5, "structural": 0.3},
		"negative weight":  {"technical": 1.2, "structural": -0.2},
		"unknown analyzer": {"technical": 0.5, "sentiment": 0.5},
		"empty":            {},
	}
	for name, ws := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateWeights(ws))
		})
	}
	assert.NoError(t, ValidateWeights(map[string]float64{"technical": 0.7, "fundamental": 0.3}))
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	doc := minimalYAML + `
decision_thresholds:
  buy_above: -0.2
  sell_below: 0.2
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buy_above")
}

func TestValidateRequiresSymbols(t *testing.T) {
	doc := `
environment: test
strategy_weights: {technical: 1.0}
venue: {bridge_url: http://bridge.local}
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	t.Setenv("SYMBOLS", "USDJPY, AUDUSD")
	t.Setenv("LOT_SIZE", "0.2")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"USDJPY", "AUDUSD"}, c.TradingParameters.SymbolsToTrade)
	assert.Equal(t, 0.2, c.TradingParameters.LotSize)
}

func TestWithWeightsDoesNotAlias(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	next := c.WithWeights(map[string]float64{"technical": 0.6, "structural": 0.2, "fundamental": 0.2})
	next.TradingParameters.SymbolsToTrade[0] = "XAUUSD"

	assert.Equal(t, 0.5, c.StrategyWeights["technical"])
	assert.Equal(t, 0.6, next.StrategyWeights["technical"])
	assert.Equal(t, "EURUSD", c.TradingParameters.SymbolsToTrade[0])
}

func TestHolderReloadKeepsOldOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	h := NewHolder(path, c)

	require.NoError(t, os.WriteFile(path, []byte("strategy_weights: [broken"), 0o644))
	_, err = h.Reload()
	require.Error(t, err)
	assert.Same(t, c, h.Current())
}
