package analytics

import (
	"context"
	"fmt"
	"time"

	"FusionTrader/internal/domain/models"
	domsvc "FusionTrader/internal/domain/service"
	"FusionTrader/internal/service/metrics"
	"FusionTrader/internal/service/ratelimit"
	"FusionTrader/pkg/cache"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

// NewSources builds the closed set of signal sources in reasoning order.
func NewSources(cfg *config.Config, c cache.Service, limiter *ratelimit.Limiter, log *logger.Logger) []domsvc.SignalSource {
	timeout := cfg.Timeouts.Analyzer
	return []domsvc.SignalSource{
		NewTechnicalSource(cfg, NewHTTPServiceBase(cfg.TechnicalParameters.ModelServiceURL, timeout), log),
		NewStructuralSource(cfg),
		NewFundamentalSource(cfg, NewHTTPServiceBase(cfg.FundamentalParameters.SentimentServiceURL, timeout), c, limiter, log),
	}
}

// Collect scores mc with every source that carries a weight. Each call gets
// its own timeout; a panic or timeout turns into an Unavailable score so one
// source never takes the instrument down.
func Collect(ctx context.Context, sources []domsvc.SignalSource, weights models.WeightSet, mc models.MarketContext, timeout time.Duration, log *logger.Logger) map[string]models.AnalyzerScore {
	out := make(map[string]models.AnalyzerScore, len(sources))
	for _, src := range sources {
		if _, ok := weights[src.Name()]; !ok {
			continue
		}
		out[src.Name()] = scoreOne(ctx, src, mc, timeout, log)
	}
	return out
}

func scoreOne(ctx context.Context, src domsvc.SignalSource, mc models.MarketContext, timeout time.Duration, log *logger.Logger) (score models.AnalyzerScore) {
	started := time.Now()
	name := src.Name()
	defer func() {
		if r := recover(); r != nil {
			log.Error("signal source panicked",
				logger.String("analyzer", name),
				logger.String("symbol", mc.Symbol),
				logger.Any("panic", fmt.Sprint(r)))
			metrics.AnalyzerErrors.WithLabelValues(name).Inc()
			score = models.NeutralScore(name, models.ScoreUnavailable, fmt.Sprintf("%s analysis failed.", name))
		}
		metrics.ObserveScore(name, string(score.Status), started)
	}()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	score = src.Score(cctx, mc)
	score.Name = name
	if score.Status == "" {
		score.Status = models.ScoreOK
	}
	if score.Status != models.ScoreOK {
		score.Value = 0
	} else {
		score.Value = models.Clamp(score.Value)
	}
	if cctx.Err() != nil && score.Status == models.ScoreOK {
		// result arrived after the deadline; do not trust it
		score = models.NeutralScore(name, models.ScoreUnavailable, fmt.Sprintf("%s analysis timed out.", name))
	}
	return score
}
