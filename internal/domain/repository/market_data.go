package repository

import (
	"context"

	"FusionTrader/internal/domain/models"
)

// MarketData provides read-only access to recent bars.
type MarketData interface {
	// GetLatestNCandles returns up to n bars, oldest first.
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
