package analytics

import (
	"context"
	"fmt"

	"FusionTrader/internal/domain/models"
	domsvc "FusionTrader/internal/domain/service"
	"FusionTrader/internal/services/features"
	"FusionTrader/pkg/config"
)

// StructuralSource scores liquidity sweeps and breaks of structure against
// the recent swing range. It is purely local.
type StructuralSource struct {
	lookback     int
	atrPeriod    int
	thresholdATR float64
}

func NewStructuralSource(cfg *config.Config) *StructuralSource {
	return &StructuralSource{
		lookback:     cfg.StructuralParameters.SwingPointLookback,
		atrPeriod:    cfg.DynamicRiskManagement.ATRPeriod,
		thresholdATR: cfg.StructuralParameters.BOSChochThresholdATR,
	}
}

func (s *StructuralSource) Name() string { return config.AnalyzerStructural }

func (s *StructuralSource) Score(_ context.Context, mc models.MarketContext) models.AnalyzerScore {
	insufficient := models.NeutralScore(s.Name(), models.ScoreInsufficient,
		"Not enough historical data for full structural analysis.")

	atr, err := features.ATR(mc.Candles, s.atrPeriod)
	if err != nil {
		return insufficient
	}
	high, low, err := features.SwingRange(mc.Candles, s.lookback)
	if err != nil {
		return insufficient
	}
	last, _ := mc.Last()
	threshold := s.thresholdATR * atr

	// Later rules override the narrative; scores accumulate.
	score := 0.0
	narrative := "Market structure is consolidating with no clear bias."
	if last.High > high && last.Close < high {
		score -= 0.5
		narrative = fmt.Sprintf("Bearish Liquidity Sweep above swing high at %.4f.", high)
	}
	if last.Low < low && last.Close > low {
		score += 0.5
		narrative = fmt.Sprintf("Bullish Liquidity Sweep below swing low at %.4f.", low)
	}
	if last.Close > high+threshold {
		score += 1.0
		narrative = fmt.Sprintf("Bullish Break of Structure confirmed with a strong close above %.4f.", high)
	}
	if last.Close < low-threshold {
		score -= 1.0
		narrative = fmt.Sprintf("Bearish Break of Structure confirmed with a strong close below %.4f.", low)
	}

	return models.AnalyzerScore{
		Name:      s.Name(),
		Value:     models.Clamp(score),
		Narrative: narrative,
		Status:    models.ScoreOK,
	}
}

var _ domsvc.SignalSource = (*StructuralSource)(nil)
