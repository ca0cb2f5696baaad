package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"FusionTrader/internal/domain/models"
	domsvc "FusionTrader/internal/domain/service"
	"FusionTrader/internal/service/ratelimit"
	"FusionTrader/pkg/cache"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

const sentimentLimiterKey = "sentiment-service"

// FundamentalSource scores a currency pair as base sentiment minus quote
// sentiment. Sentiment per currency comes from an external service and is
// cached for cache_ttl.
type FundamentalSource struct {
	svc        *HTTPServiceBase
	currencies map[string]struct{}
	cache      cache.Store
	ttl        time.Duration
	limiter    *ratelimit.Limiter
	capacity   float64
	refill     float64
	log        *logger.Logger
}

func NewFundamentalSource(cfg *config.Config, svc *HTTPServiceBase, c cache.Store, limiter *ratelimit.Limiter, log *logger.Logger) *FundamentalSource {
	fp := cfg.FundamentalParameters
	cur := make(map[string]struct{}, len(fp.CurrenciesOfInterest))
	for _, c := range fp.CurrenciesOfInterest {
		cur[strings.ToUpper(c)] = struct{}{}
	}
	return &FundamentalSource{
		svc:        svc,
		currencies: cur,
		cache:      c,
		ttl:        fp.CacheTTL,
		limiter:    limiter,
		capacity:   fp.RateLimit.Capacity,
		refill:     fp.RateLimit.RefillPerSec,
		log:        log,
	}
}

// CurrencySentiment is the aggregate the sentiment service returns.
type CurrencySentiment struct {
	ScoreSum float64 `json:"score_sum"`
	Count    int     `json:"count"`
}

func (c CurrencySentiment) Average() float64 {
	if c.Count <= 0 {
		return 0
	}
	return c.ScoreSum / float64(c.Count)
}

func (s *FundamentalSource) Name() string { return config.AnalyzerFundamental }

func (s *FundamentalSource) Score(ctx context.Context, mc models.MarketContext) models.AnalyzerScore {
	if s.svc == nil {
		return models.NeutralScore(s.Name(), models.ScoreUnavailable, "Fundamental analysis disabled.")
	}
	if len(mc.Symbol) < 6 {
		return models.NeutralScore(s.Name(), models.ScoreUnavailable,
			fmt.Sprintf("%s is not a currency pair.", mc.Symbol))
	}

	base, quote := strings.ToUpper(mc.Symbol[:3]), strings.ToUpper(mc.Symbol[3:6])
	baseAvg := s.sentiment(ctx, base).Average()
	quoteAvg := s.sentiment(ctx, quote).Average()

	return models.AnalyzerScore{
		Name:      s.Name(),
		Value:     models.Clamp(baseAvg - quoteAvg),
		Narrative: fmt.Sprintf("%s sentiment score: %.2f; %s score: %.2f.", base, baseAvg, quote, quoteAvg),
		Status:    models.ScoreOK,
	}
}

// sentiment never fails: uncovered, throttled or failed lookups count as zero articles.
func (s *FundamentalSource) sentiment(ctx context.Context, currency string) CurrencySentiment {
	if _, ok := s.currencies[currency]; !ok {
		return CurrencySentiment{}
	}

	key := cache.GenerateKey("sentiment", currency)
	var cs CurrencySentiment
	if s.cache != nil {
		err := s.cache.Get(ctx, key, &cs)
		if err == nil {
			return cs
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("sentiment cache read failed", logger.String("currency", currency), logger.Error(err))
		}
	}

	if s.limiter != nil && !s.limiter.Allow(sentimentLimiterKey, s.capacity, s.refill) {
		s.log.Debug("sentiment lookup throttled", logger.String("currency", currency))
		return CurrencySentiment{}
	}

	if err := s.svc.PostJSON(ctx, "/sentiment/currency", map[string]string{"currency": currency}, &cs); err != nil {
		s.log.Warn("sentiment service call failed", logger.String("currency", currency), logger.Error(err))
		return CurrencySentiment{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cs, s.ttl); err != nil {
			s.log.Warn("sentiment cache write failed", logger.String("currency", currency), logger.Error(err))
		}
	}
	return cs
}

var _ domsvc.SignalSource = (*FundamentalSource)(nil)
