package usecase

import (
	"context"
	"fmt"
	"sort"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
)

// MarketContextLoader fetches the bars every signal source sees for a cycle.
type MarketContextLoader struct {
	data domrepo.MarketData
}

func NewMarketContextLoader(data domrepo.MarketData) *MarketContextLoader {
	return &MarketContextLoader{data: data}
}

func (l *MarketContextLoader) Load(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) (models.MarketContext, error) {
	if symbol == "" {
		return models.MarketContext{}, fmt.Errorf("symbol required")
	}
	if n <= 0 {
		return models.MarketContext{}, fmt.Errorf("bar count must be positive, got %d", n)
	}

	candles, err := l.data.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return models.MarketContext{}, fmt.Errorf("get candles %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return models.MarketContext{}, fmt.Errorf("no bars for %s: %w", symbol, domrepo.ErrInsufficientData)
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Bucket.Before(candles[j].Bucket) })

	return models.MarketContext{Symbol: symbol, Timeframe: string(tf), Candles: candles}, nil
}
