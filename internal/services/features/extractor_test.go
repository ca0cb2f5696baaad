package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	"FusionTrader/internal/domain/repository"
)

func bars(ranges ...float64) []models.Candle {
	out := make([]models.Candle, len(ranges))
	for i, r := range ranges {
		out[i] = models.Candle{Open: 1.1, High: 1.1 + r/2, Low: 1.1 - r/2, Close: 1.1}
	}
	return out
}

func TestATRUsesNewestBars(t *testing.T) {
	c := bars(0.0100, 0.0010, 0.0020, 0.0030)
	atr, err := ATR(c, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.0020, atr, 1e-12)
}

func TestATRInsufficient(t *testing.T) {
	_, err := ATR(bars(0.001), 14)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrInsufficientData))
}

func TestSwingRangeExcludesNewestBar(t *testing.T) {
	c := []models.Candle{
		{High: 1.20, Low: 1.10},
		{High: 1.15, Low: 1.05},
		{High: 1.30, Low: 1.00}, // newest, excluded
	}
	hi, lo, err := SwingRange(c, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.20, hi)
	assert.Equal(t, 1.05, lo)

	_, _, err = SwingRange(c, 3)
	assert.Error(t, err)
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 20)
	for i := range up {
		up[i] = float64(i)
	}
	v, ok := RSI(up, 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	flat := make([]float64, 20)
	v, ok = RSI(flat, 14)
	require.True(t, ok)
	assert.Equal(t, 50.0, v)

	_, ok = RSI(up[:10], 14)
	assert.False(t, ok)
}

func TestEMASeedsWithSMA(t *testing.T) {
	out := EMA([]float64{1, 2, 3, 4}, 3)
	require.Len(t, out, 2)
	assert.InDelta(t, 2.0, out[0], 1e-12)
	assert.InDelta(t, 3.0, out[1], 1e-12) // 0.5*4 + 0.5*2
}

func TestMACDTrendSign(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 1 + float64(i)*0.001
	}
	r, ok := MACD(closes, 12, 26, 9)
	require.True(t, ok)
	assert.Greater(t, r.MACD, 0.0)

	_, ok = MACD(closes[:30], 12, 26, 9)
	assert.False(t, ok)
}

func TestRealizedVolatility(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0.01}, 5, 100))
	v := RealizedVolatility([]float64{0.01, -0.01, 0.01, -0.01}, 4, 1)
	assert.False(t, math.IsNaN(v))
	assert.Greater(t, v, 0.0)
	assert.InDelta(t, 365*24*4, BarsPerYearForTF(repository.TFM15), 1e-9)
}
