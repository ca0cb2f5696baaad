package analytics

import (
	"context"
	"fmt"
	"math"
	"strings"

	"FusionTrader/internal/domain/models"
	"FusionTrader/internal/domain/repository"
	domsvc "FusionTrader/internal/domain/service"
	"FusionTrader/internal/services/features"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

const (
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	volWindow  = 20
)

// TechnicalSource combines local RSI/MACD context with a remote sequence
// model that returns the probability of an up move.
type TechnicalSource struct {
	svc       *HTTPServiceBase
	lookback  int
	attempts  int
	timeframe repository.Timeframe
	log       *logger.Logger
}

func NewTechnicalSource(cfg *config.Config, svc *HTTPServiceBase, log *logger.Logger) *TechnicalSource {
	return &TechnicalSource{
		svc:       svc,
		lookback:  cfg.TechnicalParameters.LookbackPeriod,
		attempts:  cfg.TechnicalParameters.Attempts,
		timeframe: repository.NormalizeTimeframe(cfg.TradingParameters.Timeframe),
		log:       log,
	}
}

type technicalRequest struct {
	Symbol    string             `json:"symbol"`
	Timeframe string             `json:"timeframe"`
	Closes    []float64          `json:"closes"`
	Features  map[string]float64 `json:"features"`
}

type technicalResponse struct {
	ProbaUp *float64 `json:"proba_up"`
}

func (s *TechnicalSource) Name() string { return config.AnalyzerTechnical }

func (s *TechnicalSource) Score(ctx context.Context, mc models.MarketContext) models.AnalyzerScore {
	if s.svc == nil {
		return models.NeutralScore(s.Name(), models.ScoreUnavailable, "Technical model not loaded for this symbol.")
	}

	closes := mc.Closes()
	var parts []string
	feats := map[string]float64{}

	if rsi, ok := features.RSI(closes, rsiPeriod); ok {
		feats["rsi"] = rsi
		if rsi > 70 {
			parts = append(parts, fmt.Sprintf("RSI (%.1f) is Overbought.", rsi))
		} else if rsi < 30 {
			parts = append(parts, fmt.Sprintf("RSI (%.1f) is Oversold.", rsi))
		}
	}
	if m, ok := features.MACD(closes, macdFast, macdSlow, macdSignal); ok {
		feats["macd"] = m.MACD
		feats["macd_signal"] = m.Signal
		if m.MACD > m.Signal {
			parts = append(parts, "MACD is bullish (line over signal).")
		} else {
			parts = append(parts, "MACD is bearish (signal over line).")
		}
	}

	if len(closes) < s.lookback {
		return models.NeutralScore(s.Name(), models.ScoreInsufficient, "Not enough data for TA sequence.")
	}

	rets := features.ComputeLogReturns(mc.Candles)
	feats["realized_vol"] = features.RealizedVolatility(rets, volWindow, features.BarsPerYearForTF(s.timeframe))

	var resp technicalResponse
	req := technicalRequest{
		Symbol:    mc.Symbol,
		Timeframe: string(s.timeframe),
		Closes:    closes[len(closes)-s.lookback:],
		Features:  feats,
	}
	if err := s.svc.PostJSONWithRetry(ctx, "/technical/predict", req, &resp, s.attempts); err != nil {
		if isNotFound(err) {
			return models.NeutralScore(s.Name(), models.ScoreUnavailable, "Technical model not loaded for this symbol.")
		}
		s.log.Warn("technical model call failed", logger.String("symbol", mc.Symbol), logger.Error(err))
		return models.NeutralScore(s.Name(), models.ScoreUnavailable, "Technical model service unavailable.")
	}
	if resp.ProbaUp == nil || math.IsNaN(*resp.ProbaUp) || *resp.ProbaUp < 0 || *resp.ProbaUp > 1 {
		return models.NeutralScore(s.Name(), models.ScoreUnavailable, "Technical model returned an invalid probability.")
	}

	p := *resp.ProbaUp
	parts = append(parts, fmt.Sprintf("Model predicts %.1f%% chance of upward movement.", p*100))
	return models.AnalyzerScore{
		Name:      s.Name(),
		Value:     models.Clamp((p - 0.5) * 2),
		Narrative: strings.Join(parts, " "),
		Status:    models.ScoreOK,
	}
}

var _ domsvc.SignalSource = (*TechnicalSource)(nil)
