package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/cache"
	"FusionTrader/pkg/logger"
)

// TuneOutcome is the typed result of one tuning pass.
type TuneOutcome string

const (
	TuneApplied     TuneOutcome = "applied"
	TuneNoJoin      TuneOutcome = "no_join"
	TuneNoDiversity TuneOutcome = "no_diversity"
	TuneCollapsed   TuneOutcome = "collapsed"
)

// TuneResult carries the new weights and the evidence behind them. For every
// outcome other than TuneApplied, Weights equals the input set.
type TuneResult struct {
	Outcome      TuneOutcome
	Weights      models.WeightSet
	Previous     models.WeightSet
	Correlations map[string]float64
	Joined       int
	Unmatched    int
}

// Changed reports whether new weights should be persisted.
func (r TuneResult) Changed() bool { return r.Outcome == TuneApplied }

type joinedRow struct {
	scores map[string]float64
	profit float64
}

// Tune re-weights analyzers by the Pearson correlation of their scores with
// realized profit. It is pure.
func Tune(entries []models.JournalEntry, deals []models.DealOutcome, current models.WeightSet, learningRate float64) TuneResult {
	res := TuneResult{
		Weights:      current.Clone(),
		Previous:     current.Clone(),
		Correlations: map[string]float64{},
	}

	profits := map[int64]float64{}
	for _, d := range deals {
		if d.Entry != models.DealEntryOut {
			continue
		}
		profits[d.Ticket] += d.Profit
	}

	rows := make([]joinedRow, 0, len(entries))
	for _, e := range entries {
		p, ok := profits[e.Ticket]
		if !ok {
			res.Unmatched++
			continue
		}
		rows = append(rows, joinedRow{scores: e.Scores, profit: p})
	}
	res.Joined = len(rows)
	if len(rows) == 0 {
		res.Outcome = TuneNoJoin
		return res
	}

	var wins, losses bool
	for _, r := range rows {
		wins = wins || r.profit > 0
		losses = losses || r.profit < 0
	}
	if !wins || !losses {
		res.Outcome = TuneNoDiversity
		return res
	}

	names := sortedNames(current)
	next := current.Clone()
	for _, name := range names {
		corr, ok := correlation(rows, name)
		if !ok {
			continue
		}
		res.Correlations[name] = corr
		next[name] += corr * learningRate
	}

	sum := 0.0
	for _, name := range names {
		if next[name] < 0 {
			next[name] = 0
		}
		sum += next[name]
	}
	if sum == 0 {
		res.Outcome = TuneCollapsed
		return res
	}
	for _, name := range names {
		next[name] /= sum
	}

	res.Outcome = TuneApplied
	res.Weights = next
	return res
}

// correlation is undefined with fewer than two rows or zero variance on
// either side.
func correlation(rows []joinedRow, name string) (float64, bool) {
	xs := make([]float64, 0, len(rows))
	ys := make([]float64, 0, len(rows))
	for _, r := range rows {
		v, ok := r.scores[name]
		if !ok {
			continue
		}
		xs = append(xs, v)
		ys = append(ys, r.profit)
	}
	if len(xs) < 2 {
		return 0, false
	}
	if constant(xs) || constant(ys) {
		return 0, false
	}
	c, err := stats.Correlation(xs, ys)
	if err != nil || math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, false
	}
	return c, true
}

// constant reports whether v has no usable variance. Rounding leaves a tiny
// nonzero deviation for series like [0.2, 0.2, 0.2], so the deviation is
// compared against the magnitude of the mean.
func constant(v []float64) bool {
	same := true
	for _, x := range v[1:] {
		if x != v[0] {
			same = false
			break
		}
	}
	if same {
		return true
	}
	sd, err := stats.StandardDeviationPopulation(v)
	if err != nil {
		return true
	}
	mean, err := stats.Mean(v)
	if err != nil {
		return true
	}
	return sd <= 1e-12*math.Max(1, math.Abs(mean))
}

func sortedNames(ws models.WeightSet) []string {
	out := make([]string, 0, len(ws))
	for k := range ws {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const (
	tunerLockKey = "lock:weight-tuner"
	tunerLockTTL = 5 * time.Minute
)

// WeightTuner runs Tune against the journal and the venue history and
// persists the result. At most one run is in flight; with a distributed
// lock configured that holds across processes.
type WeightTuner struct {
	journal domrepo.Journal
	deals   domrepo.DealHistory
	store   domrepo.WeightStore
	marker  domrepo.EvaluationMarker
	lock    cache.Locker
	metrics domrepo.Metrics
	log     *logger.Logger
	padding time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

func NewWeightTuner(
	journal domrepo.Journal,
	deals domrepo.DealHistory,
	store domrepo.WeightStore,
	marker domrepo.EvaluationMarker,
	lock cache.Locker,
	metrics domrepo.Metrics,
	log *logger.Logger,
	padding time.Duration,
) *WeightTuner {
	return &WeightTuner{
		journal: journal,
		deals:   deals,
		store:   store,
		marker:  marker,
		lock:    lock,
		metrics: metrics,
		log:     log,
		padding: padding,
		now:     time.Now,
	}
}

// Run performs one tuning pass. Precondition failures come back as a
// non-applied outcome with a nil error.
func (t *WeightTuner) Run(ctx context.Context, current models.WeightSet, learningRate float64) (TuneResult, error) {
	if !t.mu.TryLock() {
		return TuneResult{}, domrepo.ErrTuneInProgress
	}
	defer t.mu.Unlock()

	if t.lock != nil {
		ok, err := t.lock.TryLock(ctx, tunerLockKey, tunerLockTTL)
		if err != nil {
			return TuneResult{}, fmt.Errorf("acquire tuner lock: %w", err)
		}
		if !ok {
			return TuneResult{}, domrepo.ErrTuneInProgress
		}
		defer func() {
			if err := t.lock.Unlock(context.WithoutCancel(ctx), tunerLockKey); err != nil {
				t.log.Warn("release tuner lock failed", logger.Error(err))
			}
		}()
	}

	t.log.Info("weight evaluation started")

	entries := t.journal.ReadAll(ctx)
	if len(entries) == 0 {
		t.log.Warn("trade journal not found or empty, cannot evaluate performance")
		res := TuneResult{Outcome: TuneNoJoin, Weights: current.Clone(), Previous: current.Clone()}
		t.record(res)
		return res, nil
	}

	from := entries[0].Timestamp
	for _, e := range entries[1:] {
		if e.Timestamp.Before(from) {
			from = e.Timestamp
		}
	}
	from = from.Add(-t.padding)
	to := t.now().UTC()

	deals, err := t.deals.HistoryDeals(ctx, from, to)
	if err != nil {
		return TuneResult{}, fmt.Errorf("history deals: %w", err)
	}

	res := Tune(entries, deals, current, learningRate)
	if res.Unmatched > 0 {
		t.log.Info("journal entries without a closing deal",
			logger.Int("unmatched", res.Unmatched),
			logger.Int("joined", res.Joined))
	}

	switch res.Outcome {
	case TuneNoJoin:
		t.log.Warn("could not match journal entries to closed deals, trades may still be open")
	case TuneNoDiversity:
		t.log.Warn("evaluation requires both winning and losing trades, aborting cycle",
			logger.Int("joined", res.Joined))
	case TuneCollapsed:
		t.log.Critical("all weights collapsed to zero during adaptation, keeping current weights",
			logger.Any("correlations", res.Correlations))
	case TuneApplied:
		t.log.Warn("adapting strategy weights",
			logger.Any("correlations", res.Correlations),
			logger.Any("old_weights", roundWeights(res.Previous)),
			logger.Any("new_weights", roundWeights(res.Weights)))

		if err := t.store.Save(ctx, res.Weights); err != nil {
			t.log.Critical("failed to persist new weights", logger.Error(err))
			t.recordError("weight_store")
			return res, fmt.Errorf("save weights: %w", err)
		}
		if t.marker != nil {
			if err := t.marker.Mark(ctx, to); err != nil {
				t.log.Critical("failed to write evaluation marker", logger.Error(err))
				t.recordError("evaluation_marker")
			}
		}
	}

	t.record(res)
	return res, nil
}

func (t *WeightTuner) record(res TuneResult) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordTune(string(res.Outcome))
	if res.Changed() {
		t.metrics.RecordWeights(res.Weights)
	}
}

func (t *WeightTuner) recordError(kind string) {
	if t.metrics != nil {
		t.metrics.RecordError(kind)
	}
}

func roundWeights(ws models.WeightSet) map[string]float64 {
	out := make(map[string]float64, len(ws))
	for k, v := range ws {
		out[k] = round3(v)
	}
	return out
}
