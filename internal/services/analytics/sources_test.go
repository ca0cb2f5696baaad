package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	domsvc "FusionTrader/internal/domain/service"
	"FusionTrader/internal/service/ratelimit"
	"FusionTrader/pkg/cache"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

const testYAML = `
environment: test
strategy_weights: {technical: 0.5, structural: 0.3, fundamental: 0.2}
trading_parameters: {symbols_to_trade: [EURUSD]}
venue: {bridge_url: http://bridge.local}
dynamic_risk_management: {atr_period: 3}
structural_parameters: {swing_point_lookback: 3, bos_choch_threshold_atr: 0.5}
technical_parameters: {lookback_period: 5, attempts: 1}
fundamental_parameters:
  currencies_of_interest: [EUR, USD]
  cache_ttl: 1m
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)
	return c
}

func flatBars(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Open: 1.05, High: 1.10, Low: 1.00, Close: 1.05}
	}
	return out
}

func withLast(c models.Candle) models.MarketContext {
	return models.MarketContext{Symbol: "EURUSD", Candles: append(flatBars(4), c)}
}

func TestStructuralScoring(t *testing.T) {
	s := NewStructuralSource(testConfig(t))

	cases := []struct {
		name      string
		last      models.Candle
		want      float64
		narrative string
	}{
		{"bullish break", models.Candle{High: 1.20, Low: 1.10, Close: 1.18}, 1.0,
			"Bullish Break of Structure confirmed with a strong close above 1.1000."},
		{"bearish sweep", models.Candle{High: 1.12, Low: 1.05, Close: 1.08}, -0.5,
			"Bearish Liquidity Sweep above swing high at 1.1000."},
		{"bullish sweep", models.Candle{High: 1.06, Low: 0.98, Close: 1.02}, 0.5,
			"Bullish Liquidity Sweep below swing low at 1.0000."},
		{"consolidating", models.Candle{High: 1.09, Low: 1.01, Close: 1.05}, 0,
			"Market structure is consolidating with no clear bias."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Score(context.Background(), withLast(tc.last))
			assert.Equal(t, models.ScoreOK, got.Status)
			assert.InDelta(t, tc.want, got.Value, 1e-12)
			assert.Equal(t, tc.narrative, got.Narrative)
		})
	}
}

func TestStructuralInsufficient(t *testing.T) {
	s := NewStructuralSource(testConfig(t))
	got := s.Score(context.Background(), models.MarketContext{Symbol: "EURUSD", Candles: flatBars(2)})
	assert.Equal(t, models.ScoreInsufficient, got.Status)
	assert.Zero(t, got.Value)
}

func TestTechnicalUsesModelProbability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/technical/predict", r.URL.Path)
		var req technicalRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Closes, 5)
		_, _ = w.Write([]byte(`{"proba_up": 0.8}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	s := NewTechnicalSource(cfg, NewHTTPServiceBase(srv.URL, time.Second), logger.NewNop())

	got := s.Score(context.Background(), models.MarketContext{Symbol: "EURUSD", Candles: flatBars(8)})
	assert.Equal(t, models.ScoreOK, got.Status)
	assert.InDelta(t, 0.6, got.Value, 1e-9)
	assert.Contains(t, got.Narrative, "Model predicts 80.0% chance of upward movement.")
}

func TestTechnicalDegradedPaths(t *testing.T) {
	cfg := testConfig(t)
	log := logger.NewNop()

	noModel := NewTechnicalSource(cfg, nil, log).Score(context.Background(), models.MarketContext{Candles: flatBars(8)})
	assert.Equal(t, models.ScoreUnavailable, noModel.Status)
	assert.Equal(t, "Technical model not loaded for this symbol.", noModel.Narrative)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	s := NewTechnicalSource(cfg, NewHTTPServiceBase(srv.URL, time.Second), log)

	short := s.Score(context.Background(), models.MarketContext{Candles: flatBars(3)})
	assert.Equal(t, models.ScoreInsufficient, short.Status)
	assert.Equal(t, "Not enough data for TA sequence.", short.Narrative)

	missing := s.Score(context.Background(), models.MarketContext{Candles: flatBars(8)})
	assert.Equal(t, models.ScoreUnavailable, missing.Status)
	assert.Zero(t, missing.Value)
}

func sentimentServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	data := map[string]CurrencySentiment{
		"EUR": {ScoreSum: 1.2, Count: 3},
		"USD": {ScoreSum: -0.3, Count: 3},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(data[req["currency"]])
	}))
}

func TestFundamentalScoresPairAndCaches(t *testing.T) {
	var hits int32
	srv := sentimentServer(t, &hits)
	defer srv.Close()

	mc := cache.NewMemoryCache()
	defer mc.Close()

	s := NewFundamentalSource(testConfig(t), NewHTTPServiceBase(srv.URL, time.Second), mc, ratelimit.New(), logger.NewNop())

	got := s.Score(context.Background(), models.MarketContext{Symbol: "EURUSD"})
	assert.InDelta(t, 0.5, got.Value, 1e-9)
	assert.Equal(t, "EUR sentiment score: 0.40; USD score: -0.10.", got.Narrative)

	again := s.Score(context.Background(), models.MarketContext{Symbol: "EURUSD"})
	assert.Equal(t, got, again)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "second score must be served from cache")
}

func TestFundamentalThrottledCurrencyCountsAsZero(t *testing.T) {
	var hits int32
	srv := sentimentServer(t, &hits)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.FundamentalParameters.RateLimit.Capacity = 1
	cfg.FundamentalParameters.RateLimit.RefillPerSec = 0.0001

	s := NewFundamentalSource(cfg, NewHTTPServiceBase(srv.URL, time.Second), nil, ratelimit.New(), logger.NewNop())
	got := s.Score(context.Background(), models.MarketContext{Symbol: "EURUSD"})
	assert.InDelta(t, 0.4, got.Value, 1e-9)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFundamentalDisabled(t *testing.T) {
	s := NewFundamentalSource(testConfig(t), nil, nil, nil, logger.NewNop())
	got := s.Score(context.Background(), models.MarketContext{Symbol: "EURUSD"})
	assert.Equal(t, models.ScoreUnavailable, got.Status)
	assert.Equal(t, "Fundamental analysis disabled.", got.Narrative)
}

type panicSource struct{}

func (panicSource) Name() string { return "technical" }
func (panicSource) Score(context.Context, models.MarketContext) models.AnalyzerScore {
	panic("boom")
}

type fixedSource struct {
	name  string
	value float64
}

func (f fixedSource) Name() string { return f.name }
func (f fixedSource) Score(context.Context, models.MarketContext) models.AnalyzerScore {
	return models.AnalyzerScore{Value: f.value, Narrative: f.name + " view", Status: models.ScoreOK}
}

func TestCollectIsolatesPanicsAndSkipsUnweighted(t *testing.T) {
	weights := models.WeightSet{"technical": 0.5, "structural": 0.5}
	sources := []domsvc.SignalSource{panicSource{}, fixedSource{"structural", 3}, fixedSource{"fundamental", 0.2}}

	got := Collect(context.Background(), sources, weights, models.MarketContext{Symbol: "EURUSD"}, time.Second, logger.NewNop())

	require.Len(t, got, 2)
	assert.Equal(t, models.ScoreUnavailable, got["technical"].Status)
	assert.Zero(t, got["technical"].Value)
	assert.Equal(t, 1.0, got["structural"].Value, "values are clamped")
	assert.Equal(t, "structural", got["structural"].Name)
}
