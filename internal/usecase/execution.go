package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/internal/services/features"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

// atrPrecision drops float noise from the ATR before it is divided by the
// point size, so 0.002*1.5/0.0001 truncates to 30 and not 29.
const atrPrecision = 10

// RiskParams are the sizing inputs of a risk plan.
type RiskParams struct {
	ATRPeriod    int
	SLMultiplier float64
	TPMultiplier float64
	LotSize      float64
}

func RiskParamsFrom(cfg *config.Config) RiskParams {
	return RiskParams{
		ATRPeriod:    cfg.DynamicRiskManagement.ATRPeriod,
		SLMultiplier: cfg.DynamicRiskManagement.SLATRMultiplier,
		TPMultiplier: cfg.DynamicRiskManagement.TPATRMultiplier,
		LotSize:      cfg.TradingParameters.LotSize,
	}
}

// PlanRisk converts a BUY/SELL into entry, stop and target. Distances are
// ATR multiples truncated to whole points; levels are rounded to the
// instrument's digits.
func PlanRisk(symbol string, action models.Action, candles []models.Candle, q models.Quote, info models.SymbolInfo, p RiskParams) (models.RiskPlan, error) {
	if !action.IsTrade() {
		return models.RiskPlan{}, fmt.Errorf("plan risk: action %s does not trade", action)
	}
	if info.Point <= 0 {
		return models.RiskPlan{}, fmt.Errorf("plan risk: invalid point %v for %s", info.Point, symbol)
	}
	atr, err := features.ATR(candles, p.ATRPeriod)
	if err != nil {
		return models.RiskPlan{}, fmt.Errorf("plan risk: %w", err)
	}

	point := decimal.NewFromFloat(info.Point)
	atrD := decimal.NewFromFloat(atr).Round(atrPrecision)
	slPoints := atrD.Mul(decimal.NewFromFloat(p.SLMultiplier)).Div(point).Truncate(0)
	tpPoints := atrD.Mul(decimal.NewFromFloat(p.TPMultiplier)).Div(point).Truncate(0)
	slDist := slPoints.Mul(point)
	tpDist := tpPoints.Mul(point)

	var entry, sl, tp decimal.Decimal
	if action == models.ActionBuy {
		entry = decimal.NewFromFloat(q.Ask)
		sl = entry.Sub(slDist)
		tp = entry.Add(tpDist)
	} else {
		entry = decimal.NewFromFloat(q.Bid)
		sl = entry.Add(slDist)
		tp = entry.Sub(tpDist)
	}
	if !entry.IsPositive() {
		return models.RiskPlan{}, fmt.Errorf("plan risk: no %s price for %s", action, symbol)
	}

	return models.RiskPlan{
		Symbol:     symbol,
		Action:     action,
		Entry:      entry.InexactFloat64(),
		StopLoss:   sl.Round(info.Digits).InexactFloat64(),
		TakeProfit: tp.Round(info.Digits).InexactFloat64(),
		Volume:     p.LotSize,
		ATR:        atr,
		SLPoints:   slPoints.IntPart(),
		TPPoints:   tpPoints.IntPart(),
	}, nil
}

// Executor sends one order per trade decision and journals it.
type Executor struct {
	venue   domrepo.ExecutionVenue
	journal domrepo.Journal
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewExecutor(venue domrepo.ExecutionVenue, journal domrepo.Journal, metrics domrepo.Metrics, log *logger.Logger) *Executor {
	return &Executor{venue: venue, journal: journal, metrics: metrics, log: log, now: time.Now}
}

// Execute places the order for d. The order is never retried. On a fill the
// journal entry is appended; Journaled reports whether that write succeeded.
// A journal failure after a fill returns an error wrapping ErrJournalWrite.
func (x *Executor) Execute(ctx context.Context, cfg *config.Config, d models.Decision, mc models.MarketContext) (models.ExecutionResult, error) {
	var res models.ExecutionResult
	if !d.Action.IsTrade() {
		return res, fmt.Errorf("execute %s: action %s does not trade", d.Symbol, d.Action)
	}

	info, q, err := x.market(ctx, cfg.Timeouts.Venue, d.Symbol)
	if err != nil {
		return res, err
	}

	plan, err := PlanRisk(d.Symbol, d.Action, mc.Candles, q, info, RiskParamsFrom(cfg))
	if err != nil {
		return res, err
	}
	res.Plan = plan

	req := models.OrderRequest{
		Symbol:     d.Symbol,
		Action:     d.Action,
		Volume:     plan.Volume,
		Price:      plan.Entry,
		StopLoss:   plan.StopLoss,
		TakeProfit: plan.TakeProfit,
		Deviation:  cfg.TradingParameters.Deviation,
		Magic:      cfg.TradingParameters.Magic,
		Comment:    fmt.Sprintf("%s %s %.2f", cfg.SystemIdentity.Name, d.Action, d.Confidence),
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Venue)
	defer cancel()
	start := time.Now()
	order, err := x.venue.SendOrder(sctx, req)
	x.recordLatency("order_send_seconds", start)
	if err != nil {
		x.recordOrder(d.Symbol, false)
		x.log.Error("order send failed", logger.String("symbol", d.Symbol), logger.Error(err))
		return res, fmt.Errorf("send order %s: %w", d.Symbol, err)
	}
	res.Order = order
	if !order.Success {
		x.recordOrder(d.Symbol, false)
		x.log.Error("order rejected",
			logger.String("symbol", d.Symbol),
			logger.Int("retcode", order.RetCode),
			logger.String("comment", order.Comment))
		return res, fmt.Errorf("%w: %s retcode=%d %s", domrepo.ErrOrderRejected, d.Symbol, order.RetCode, order.Comment)
	}

	x.recordOrder(d.Symbol, true)
	x.log.Info("order sent",
		logger.String("symbol", d.Symbol),
		logger.String("action", string(d.Action)),
		logger.Float64("price", plan.Entry),
		logger.Float64("sl", plan.StopLoss),
		logger.Float64("tp", plan.TakeProfit),
		logger.Int64("ticket", order.Ticket))

	entry := models.JournalEntry{
		Timestamp:  x.now().UTC(),
		Ticket:     order.Ticket,
		Symbol:     d.Symbol,
		Signal:     d.Action,
		Confidence: d.Confidence,
		Scores:     models.WeightSet(d.Scores).Clone(),
	}
	if err := x.journal.Append(ctx, entry); err != nil {
		x.log.Critical("order placed, journal write failed",
			logger.String("symbol", d.Symbol),
			logger.Int64("ticket", order.Ticket),
			logger.Error(err))
		if x.metrics != nil {
			x.metrics.RecordError("journal_write")
		}
		return res, fmt.Errorf("%w: ticket %d: %v", domrepo.ErrJournalWrite, order.Ticket, err)
	}
	res.Journaled = true
	return res, nil
}

func (x *Executor) market(ctx context.Context, timeout time.Duration, symbol string) (models.SymbolInfo, models.Quote, error) {
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := x.venue.SymbolInfo(vctx, symbol)
	if err != nil {
		return info, models.Quote{}, fmt.Errorf("symbol info %s: %w", symbol, err)
	}
	q, err := x.venue.Quote(vctx, symbol)
	if err != nil {
		return info, q, fmt.Errorf("quote %s: %w", symbol, err)
	}
	return info, q, nil
}

func (x *Executor) recordOrder(symbol string, ok bool) {
	if x.metrics != nil {
		x.metrics.RecordOrder(symbol, ok)
	}
}

func (x *Executor) recordLatency(op string, start time.Time) {
	if x.metrics != nil {
		x.metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}

// IsOrderFailure reports whether err means no order was placed.
func IsOrderFailure(err error) bool {
	return err != nil && !errors.Is(err, domrepo.ErrJournalWrite)
}
