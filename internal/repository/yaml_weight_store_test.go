package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	"FusionTrader/pkg/config"
)

const weightsYAML = `# FusionTrader
environment: test
strategy_weights: # tuned automatically
  technical: 0.5
  structural: 0.3
  fundamental: 0.2
trading_parameters:
  symbols_to_trade: [EURUSD]
venue:
  bridge_url: http://bridge.local # keep
`

func TestYAMLWeightStoreSaveKeepsRestOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(weightsYAML), 0o600))
	store := NewYAMLWeightStore(path)

	ws := models.WeightSet{"technical": 0.55, "structural": 0.25, "fundamental": 0.2}
	require.NoError(t, store.Save(context.Background(), ws))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ws, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "# FusionTrader")
	assert.Contains(t, text, "# keep")
	assert.Contains(t, text, "technical: 0.55")

	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD"}, c.TradingParameters.SymbolsToTrade)
	assert.Equal(t, 0.55, c.StrategyWeights["technical"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestYAMLWeightStoreWritesPlainFloats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(weightsYAML), 0o644))
	store := NewYAMLWeightStore(path)

	ws := models.WeightSet{"technical": 1, "structural": 0, "fundamental": 0}
	require.NoError(t, store.Save(context.Background(), ws))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.NotContains(t, text, "!!float")
	assert.Contains(t, text, "technical: 1.0")
	assert.Contains(t, text, "structural: 0.0")

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ws, got)
}

func TestYAMLWeightStoreRejectsInvalidWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(weightsYAML), 0o644))
	store := NewYAMLWeightStore(path)

	assert.Error(t, store.Save(context.Background(), models.WeightSet{"technical": 0.7}))
	assert.Error(t, store.Save(context.Background(), models.WeightSet{"technical": 1.2, "structural": -0.2}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, weightsYAML, string(raw), "file untouched")
}

func TestYAMLWeightStoreMissingFile(t *testing.T) {
	store := NewYAMLWeightStore(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := store.Load(context.Background())
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), models.WeightSet{"technical": 1}))
}
