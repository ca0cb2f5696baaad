package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/config"
)

func parseConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return c
}

// bars returns n candles with a constant 0.0020 range, oldest first.
func bars(symbol string, n int) []models.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Bucket: start.Add(time.Duration(i) * 15 * time.Minute),
			Symbol: symbol,
			Open:   1.1000,
			High:   1.1010,
			Low:    1.0990,
			Close:  1.1000,
		}
	}
	return out
}

type memJournal struct {
	mu      sync.Mutex
	entries []models.JournalEntry
	err     error
}

func (j *memJournal) Append(_ context.Context, e models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) ReadAll(context.Context) []models.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.JournalEntry(nil), j.entries...)
}

type fakeVenue struct {
	mu       sync.Mutex
	reject   bool
	sendErr  error
	next     int64
	requests []models.OrderRequest
}

func (v *fakeVenue) SymbolInfo(_ context.Context, symbol string) (models.SymbolInfo, error) {
	return models.SymbolInfo{Symbol: symbol, Point: 0.0001, Digits: 5}, nil
}

func (v *fakeVenue) Quote(_ context.Context, symbol string) (models.Quote, error) {
	return models.Quote{Symbol: symbol, Bid: 1.0998, Ask: 1.1000}, nil
}

func (v *fakeVenue) SendOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requests = append(v.requests, req)
	if v.sendErr != nil {
		return models.OrderResult{}, v.sendErr
	}
	if v.reject {
		return models.OrderResult{Success: false, RetCode: 10006, Comment: "Request rejected"}, nil
	}
	if v.next == 0 {
		v.next = 1001
	}
	t := v.next
	v.next++
	return models.OrderResult{Success: true, Ticket: t, RetCode: 10009, Comment: "Request executed"}, nil
}

type fakeDeals struct {
	deals    []models.DealOutcome
	from, to time.Time
	err      error
}

func (d *fakeDeals) HistoryDeals(_ context.Context, from, to time.Time) ([]models.DealOutcome, error) {
	d.from, d.to = from, to
	return d.deals, d.err
}

type memWeightStore struct {
	saved []models.WeightSet
	err   error
}

func (s *memWeightStore) Load(context.Context) (models.WeightSet, error) {
	if len(s.saved) == 0 {
		return nil, errors.New("nothing saved")
	}
	return s.saved[len(s.saved)-1], nil
}

func (s *memWeightStore) Save(_ context.Context, ws models.WeightSet) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, ws.Clone())
	return nil
}

type memMarker struct {
	marks []time.Time
}

func (m *memMarker) Mark(_ context.Context, at time.Time) error {
	m.marks = append(m.marks, at)
	return nil
}

func (m *memMarker) Last(context.Context) (time.Time, bool) {
	if len(m.marks) == 0 {
		return time.Time{}, false
	}
	return m.marks[len(m.marks)-1], true
}

type captureSink struct {
	snapshots []models.StatusSnapshot
	err       error
}

func (s *captureSink) Publish(_ context.Context, snap models.StatusSnapshot) error {
	s.snapshots = append(s.snapshots, snap)
	return s.err
}

type fakeMarketData struct {
	panicFor string
	empty    map[string]bool
}

func (m *fakeMarketData) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	if symbol == m.panicFor {
		panic("feed exploded")
	}
	if m.empty[symbol] {
		return nil, nil
	}
	return bars(symbol, n), nil
}

// perSymbolSource returns a fixed score per symbol.
type perSymbolSource struct {
	name   string
	values map[string]float64
}

func (s perSymbolSource) Name() string { return s.name }

func (s perSymbolSource) Score(_ context.Context, mc models.MarketContext) models.AnalyzerScore {
	return models.AnalyzerScore{Name: s.name, Value: s.values[mc.Symbol], Narrative: s.name + " view", Status: models.ScoreOK}
}
