package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	domsvc "FusionTrader/internal/domain/service"
	"FusionTrader/internal/services/analytics"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/logger"
)

// CycleReport summarizes one pass over all instruments.
type CycleReport struct {
	ID        string
	Started   time.Time
	Analyzed  int
	Skipped   int
	Orders    int
	Journaled int
	Tune      *TuneResult
}

// Orchestrator is the control loop body: per cycle it decides and executes
// every instrument sequentially, then runs the tuner when it is due.
type Orchestrator struct {
	holder   *config.Holder
	loader   *MarketContextLoader
	sources  []domsvc.SignalSource
	engine   *DecisionEngine
	executor *Executor
	tuner    *WeightTuner
	events   domrepo.EventPublisher
	metrics  domrepo.Metrics
	log      *logger.Logger

	trades       atomic.Int64
	tradesAtTune atomic.Int64
	evalRequests chan string
}

func NewOrchestrator(
	holder *config.Holder,
	loader *MarketContextLoader,
	sources []domsvc.SignalSource,
	engine *DecisionEngine,
	executor *Executor,
	tuner *WeightTuner,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		holder:       holder,
		loader:       loader,
		sources:      sources,
		engine:       engine,
		executor:     executor,
		tuner:        tuner,
		events:       events,
		metrics:      metrics,
		log:          log,
		evalRequests: make(chan string, 1),
	}
}

// TradesCounted is the number of fills with a confirmed journal entry.
func (o *Orchestrator) TradesCounted() int64 { return o.trades.Load() }

// TradesAtLastTune is the trade count when the tuner last completed.
func (o *Orchestrator) TradesAtLastTune() int64 { return o.tradesAtTune.Load() }

// RequestEvaluation queues an operator tuning pass for the end of the next
// cycle. It returns false when one is already queued.
func (o *Orchestrator) RequestEvaluation(reason string) bool {
	select {
	case o.evalRequests <- reason:
		return true
	default:
		return false
	}
}

// RunCycle analyzes every configured instrument once. Cancelling ctx stops
// the loop before the next instrument; the instrument in flight finishes
// with its own timeouts.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	cfg := o.holder.Current()
	weights := models.WeightSet(cfg.StrategyWeights).Clone()
	report := CycleReport{ID: uuid.NewString(), Started: time.Now().UTC()}
	log := o.log.With(logger.String("cycle_id", report.ID))

	log.Info("cycle started", logger.Strings("symbols", cfg.TradingParameters.SymbolsToTrade))
	for _, symbol := range cfg.TradingParameters.SymbolsToTrade {
		if ctx.Err() != nil {
			log.Info("shutdown requested, stopping cycle")
			return report
		}
		report.Analyzed++
		outcome := o.processSymbol(context.WithoutCancel(ctx), log, report.ID, cfg, weights, symbol)
		switch outcome {
		case symbolSkipped:
			report.Skipped++
		case symbolOrdered:
			report.Orders++
		case symbolJournaled:
			report.Orders++
			report.Journaled++
		}
	}
	if o.metrics != nil {
		o.metrics.RecordLatency("cycle_seconds", time.Since(report.Started).Seconds())
	}
	log.Info("all symbols analyzed",
		logger.Int("analyzed", report.Analyzed),
		logger.Int("skipped", report.Skipped),
		logger.Int("journaled", report.Journaled))

	if ctx.Err() == nil {
		report.Tune = o.maybeTune(ctx, log, cfg)
	}
	return report
}

type symbolOutcome int

const (
	symbolSkipped symbolOutcome = iota
	symbolHeld
	symbolOrdered
	symbolJournaled
)

func (o *Orchestrator) processSymbol(ctx context.Context, log *logger.Logger, cycleID string, cfg *config.Config, weights models.WeightSet, symbol string) (outcome symbolOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("unhandled panic during analysis",
				logger.String("symbol", symbol),
				logger.Any("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())))
			o.recordError("symbol_panic")
			outcome = symbolSkipped
		}
	}()

	log = log.With(logger.String("symbol", symbol))

	lctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Venue)
	mc, err := o.loader.Load(lctx, symbol, domrepo.NormalizeTimeframe(cfg.TradingParameters.Timeframe), cfg.TradingParameters.BarsToFetch)
	cancel()
	if err != nil {
		log.Warn("market data unavailable, skipping symbol", logger.Error(err))
		o.recordError("market_data")
		return symbolSkipped
	}

	scores := analytics.Collect(ctx, o.sources, weights, mc, cfg.Timeouts.Analyzer, log)
	d := o.engine.Evaluate(ctx, symbol, scores, weights, ThresholdsFrom(cfg))
	o.publishDecision(ctx, log, cycleID, d)

	if !d.Action.IsTrade() {
		return symbolHeld
	}

	res, err := o.executor.Execute(ctx, cfg, d, mc)
	if err != nil && IsOrderFailure(err) {
		log.Warn("execution failed, no trade counted", logger.Error(err))
		if res.Order.Success {
			return symbolOrdered
		}
		return symbolSkipped
	}
	if !res.Journaled {
		return symbolOrdered
	}

	n := o.trades.Add(1)
	log.Info("trade counted", logger.Int64("trades", n))
	o.publishExecution(ctx, log, cycleID, d, res)
	return symbolJournaled
}

// maybeTune runs the tuner once evaluation_period_trades new trades have been
// journaled since the last run, or when an operator asked for it.
func (o *Orchestrator) maybeTune(ctx context.Context, log *logger.Logger, cfg *config.Config) *TuneResult {
	requested := ""
	select {
	case requested = <-o.evalRequests:
	default:
	}

	trades := o.trades.Load()
	due := trades-o.tradesAtTune.Load() >= int64(cfg.EvaluatorSettings.EvaluationPeriodTrades)
	if !due && requested == "" {
		return nil
	}
	if requested != "" {
		log.Info("operator requested evaluation", logger.String("reason", requested))
	} else {
		log.Warn("evaluation trade count reached, triggering weight tuning", logger.Int64("trades", trades))
	}

	res, err := o.tuner.Run(ctx, models.WeightSet(cfg.StrategyWeights), cfg.EvaluatorSettings.LearningRate)
	if errors.Is(err, domrepo.ErrTuneInProgress) {
		log.Info("weight tuning already running elsewhere, will retry next cycle")
		return nil
	}
	o.tradesAtTune.Store(trades)
	if err != nil {
		log.Error("weight tuning failed", logger.Error(err))
		return &res
	}
	if res.Changed() {
		o.applyWeights(log, cfg, res.Weights)
	}
	return &res
}

// applyWeights installs the tuned weights for the next cycle, preferring a
// full reload of the rewritten config file.
func (o *Orchestrator) applyWeights(log *logger.Logger, cfg *config.Config, ws models.WeightSet) {
	if _, err := o.holder.Reload(); err != nil {
		log.Warn("config reload failed, applying tuned weights in memory", logger.Error(err))
		o.holder.Replace(cfg.WithWeights(ws))
		return
	}
	log.Info("configuration reloaded with adapted weights")
}

func (o *Orchestrator) publishDecision(ctx context.Context, log *logger.Logger, cycleID string, d models.Decision) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishDecision(ctx, cycleID, d); err != nil {
		log.Warn("publish decision event failed", logger.Error(err))
	}
}

func (o *Orchestrator) publishExecution(ctx context.Context, log *logger.Logger, cycleID string, d models.Decision, r models.ExecutionResult) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishExecution(ctx, cycleID, d, r); err != nil {
		log.Warn("publish execution event failed", logger.Error(err))
	}
}

func (o *Orchestrator) recordError(kind string) {
	if o.metrics != nil {
		o.metrics.RecordError(kind)
	}
}
