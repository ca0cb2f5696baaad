package usecase

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/cache"
	"FusionTrader/pkg/logger"
)

func entry(ticket int64, scores map[string]float64) models.JournalEntry {
	return models.JournalEntry{
		Timestamp:  fixedNow.Add(time.Duration(ticket) * time.Minute),
		Ticket:     ticket,
		Symbol:     "EURUSD",
		Signal:     models.ActionBuy,
		Confidence: 0.6,
		Scores:     scores,
	}
}

func closing(ticket int64, profit float64) models.DealOutcome {
	return models.DealOutcome{Ticket: ticket, Profit: profit, Entry: models.DealEntryOut, Symbol: "EURUSD"}
}

func workedJournal() ([]models.JournalEntry, []models.DealOutcome) {
	entries := []models.JournalEntry{
		entry(1, map[string]float64{"technical": 0.9, "structural": 0.2, "fundamental": -0.5}),
		entry(2, map[string]float64{"technical": -0.8, "structural": 0.2, "fundamental": 0.5}),
		entry(3, map[string]float64{"technical": 0.1, "structural": 0.2, "fundamental": 0.0}),
	}
	deals := []models.DealOutcome{closing(1, 50), closing(2, -30), closing(3, 5)}
	return entries, deals
}

func TestTuneWorkedExample(t *testing.T) {
	entries, deals := workedJournal()
	current := models.WeightSet{"technical": 0.5, "structural": 0.3, "fundamental": 0.2}

	res := Tune(entries, deals, current, 0.05)
	require.Equal(t, TuneApplied, res.Outcome)
	assert.Equal(t, 3, res.Joined)

	assert.Greater(t, res.Correlations["technical"], 0.9)
	assert.Less(t, res.Correlations["fundamental"], 0.0)
	_, ok := res.Correlations["structural"]
	assert.False(t, ok, "constant scores have no correlation")

	assert.Greater(t, res.Weights["technical"], 0.5)
	assert.Less(t, res.Weights["fundamental"], 0.2)
	assert.InDelta(t, 1.0, res.Weights.Sum(), 1e-9)
	assert.Equal(t, current, res.Previous)
	assert.Equal(t, 0.5, current["technical"], "input is not mutated")
}

func TestConstantSeries(t *testing.T) {
	assert.True(t, constant([]float64{0.2, 0.2, 0.2}))
	assert.True(t, constant([]float64{0.1 + 0.2, 0.3, 0.30000000000000004}))
	assert.True(t, constant([]float64{1e6, 1e6 + 1e-7}))
	assert.False(t, constant([]float64{0.2, 0.2, 0.21}))
	assert.False(t, constant([]float64{-30, 5, 50}))

	rows := []joinedRow{
		{scores: map[string]float64{"structural": 0.2}, profit: 50},
		{scores: map[string]float64{"structural": 0.2}, profit: -30},
		{scores: map[string]float64{"structural": 0.2}, profit: 5},
	}
	_, ok := correlation(rows, "structural")
	assert.False(t, ok)
}

func TestTuneNeedsWinsAndLosses(t *testing.T) {
	entries, _ := workedJournal()
	deals := []models.DealOutcome{closing(1, 50), closing(2, 30), closing(3, 5)}
	current := models.WeightSet{"technical": 0.5, "structural": 0.3, "fundamental": 0.2}

	res := Tune(entries, deals, current, 0.05)
	assert.Equal(t, TuneNoDiversity, res.Outcome)
	assert.Equal(t, current, res.Weights)
	assert.False(t, res.Changed())
}

func TestTuneIgnoresOpeningDeals(t *testing.T) {
	entries, _ := workedJournal()
	deals := []models.DealOutcome{
		{Ticket: 1, Profit: 0, Entry: models.DealEntryIn},
		{Ticket: 2, Profit: 0, Entry: models.DealEntryIn},
	}
	current := models.WeightSet{"technical": 1}

	res := Tune(entries, deals, current, 0.05)
	assert.Equal(t, TuneNoJoin, res.Outcome)
	assert.Equal(t, 3, res.Unmatched)
	assert.Equal(t, current, res.Weights)
}

func TestTuneSumsPartialCloses(t *testing.T) {
	entries := []models.JournalEntry{
		entry(1, map[string]float64{"technical": 0.9}),
		entry(2, map[string]float64{"technical": -0.9}),
	}
	deals := []models.DealOutcome{closing(1, -10), closing(1, 25), closing(2, -5)}

	res := Tune(entries, deals, models.WeightSet{"technical": 0.5, "structural": 0.5}, 0.1)
	require.Equal(t, TuneApplied, res.Outcome)
	assert.InDelta(t, 1.0, res.Correlations["technical"], 1e-9)
}

func TestTuneCollapseKeepsCurrentWeights(t *testing.T) {
	entries := []models.JournalEntry{
		entry(1, map[string]float64{"technical": 1}),
		entry(2, map[string]float64{"technical": -1}),
	}
	deals := []models.DealOutcome{closing(1, -10), closing(2, 10)}
	current := models.WeightSet{"technical": 1}

	res := Tune(entries, deals, current, 2)
	assert.Equal(t, TuneCollapsed, res.Outcome)
	assert.Equal(t, current, res.Weights)
}

func TestTuneWeightsStayNormalized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	names := []string{"technical", "structural", "fundamental"}

	for i := 0; i < 200; i++ {
		current := models.WeightSet{}
		total := 0.0
		for _, n := range names {
			w := rng.Float64()
			current[n] = w
			total += w
		}
		for _, n := range names {
			current[n] /= total
		}

		var entries []models.JournalEntry
		var deals []models.DealOutcome
		for k := int64(1); k <= int64(2+rng.Intn(10)); k++ {
			scores := map[string]float64{}
			for _, n := range names {
				scores[n] = rng.Float64()*2 - 1
			}
			entries = append(entries, entry(k, scores))
			deals = append(deals, closing(k, rng.Float64()*200-100))
		}

		res := Tune(entries, deals, current, rng.Float64())
		if res.Outcome != TuneApplied {
			assert.Equal(t, current, res.Weights)
			continue
		}
		for n, w := range res.Weights {
			assert.GreaterOrEqual(t, w, 0.0, n)
			assert.False(t, math.IsNaN(w), n)
		}
		assert.InDelta(t, 1.0, res.Weights.Sum(), 1e-9)
	}
}

func newTestTuner(journal domrepo.Journal, deals *fakeDeals, store *memWeightStore, marker *memMarker, lock cache.Service) *WeightTuner {
	tu := NewWeightTuner(journal, deals, store, marker, lock, nil, logger.NewNop(), 24*time.Hour)
	tu.now = func() time.Time { return fixedNow.Add(48 * time.Hour) }
	return tu
}

func TestWeightTunerRunPersistsAppliedWeights(t *testing.T) {
	entries, dealList := workedJournal()
	journal := &memJournal{entries: entries}
	deals := &fakeDeals{deals: dealList}
	store := &memWeightStore{}
	marker := &memMarker{}
	tu := newTestTuner(journal, deals, store, marker, nil)

	res, err := tu.Run(context.Background(), models.WeightSet{"technical": 0.5, "structural": 0.3, "fundamental": 0.2}, 0.05)
	require.NoError(t, err)
	require.Equal(t, TuneApplied, res.Outcome)

	require.Len(t, store.saved, 1)
	assert.Equal(t, res.Weights, store.saved[0])
	require.Len(t, marker.marks, 1)
	assert.Equal(t, fixedNow.Add(48*time.Hour), marker.marks[0])

	assert.Equal(t, fixedNow.Add(time.Minute).Add(-24*time.Hour), deals.from)
	assert.Equal(t, fixedNow.Add(48*time.Hour), deals.to)
}

func TestWeightTunerRunSkipsSaveWithoutChange(t *testing.T) {
	entries, _ := workedJournal()
	store := &memWeightStore{}
	marker := &memMarker{}
	tu := newTestTuner(&memJournal{entries: entries}, &fakeDeals{}, store, marker, nil)

	res, err := tu.Run(context.Background(), models.WeightSet{"technical": 1}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, TuneNoJoin, res.Outcome)
	assert.Empty(t, store.saved)
	assert.Empty(t, marker.marks)
}

func TestWeightTunerRunEmptyJournal(t *testing.T) {
	deals := &fakeDeals{}
	tu := newTestTuner(&memJournal{}, deals, &memWeightStore{}, &memMarker{}, nil)

	res, err := tu.Run(context.Background(), models.WeightSet{"technical": 1}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, TuneNoJoin, res.Outcome)
	assert.True(t, deals.from.IsZero(), "history is not queried")
}

func TestWeightTunerRunRejectsConcurrentRun(t *testing.T) {
	tu := newTestTuner(&memJournal{}, &fakeDeals{}, &memWeightStore{}, &memMarker{}, nil)
	tu.mu.Lock()
	defer tu.mu.Unlock()

	_, err := tu.Run(context.Background(), models.WeightSet{"technical": 1}, 0.05)
	assert.ErrorIs(t, err, domrepo.ErrTuneInProgress)
}

func TestWeightTunerRunHonoursSharedLock(t *testing.T) {
	lock := cache.NewMemoryCache()
	defer lock.Close()
	ok, err := lock.TryLock(context.Background(), tunerLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	tu := newTestTuner(&memJournal{}, &fakeDeals{}, &memWeightStore{}, &memMarker{}, lock)
	_, err = tu.Run(context.Background(), models.WeightSet{"technical": 1}, 0.05)
	assert.ErrorIs(t, err, domrepo.ErrTuneInProgress)

	require.NoError(t, lock.Unlock(context.Background(), tunerLockKey))
	_, err = tu.Run(context.Background(), models.WeightSet{"technical": 1}, 0.05)
	assert.NoError(t, err)
}
