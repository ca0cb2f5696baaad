package service

import (
	"context"

	"FusionTrader/internal/domain/models"
)

// SignalSource is one independent analyzer. Score must not panic or fail on
// missing data: it returns a neutral score with a non-OK status instead.
type SignalSource interface {
	Name() string
	Score(ctx context.Context, mc models.MarketContext) models.AnalyzerScore
}
