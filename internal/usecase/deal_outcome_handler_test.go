package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
)

type memOutcomeStore struct {
	fakeDeals
	stored []models.DealOutcome
	err    error
}

func (s *memOutcomeStore) StoreDeal(_ context.Context, d models.DealOutcome) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, d)
	return nil
}

func TestDealOutcomeHandlerDecodes(t *testing.T) {
	store := &memOutcomeStore{}
	h := NewDealOutcomeHandler("fusiontrader.deals", store, nil)
	assert.Equal(t, "fusiontrader.deals", h.Topic())

	cases := []struct {
		name  string
		body  string
		entry models.DealEntry
		at    time.Time
	}{
		{"unix seconds", `{"order":1001,"profit":12.5,"entry":"out","symbol":"EURUSD","time":1709294400}`, models.DealEntryOut, time.Unix(1709294400, 0).UTC()},
		{"unix millis", `{"order":1002,"profit":-3,"entry":1,"symbol":"EURUSD","time":1709294400000}`, models.DealEntryOut, time.Unix(1709294400, 0).UTC()},
		{"iso string", `{"order":1003,"profit":0,"entry":"in","symbol":"GBPUSD","time":"2024-03-01T12:00:00Z"}`, models.DealEntryIn, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, h.Handle(context.Background(), []byte(tc.body)))
			got := store.stored[len(store.stored)-1]
			assert.Equal(t, tc.entry, got.Entry)
			assert.True(t, tc.at.Equal(got.Time), "got %s", got.Time)
		})
	}
}

func TestDealOutcomeHandlerRejectsBadMessages(t *testing.T) {
	store := &memOutcomeStore{}
	h := NewDealOutcomeHandler("deals", store, nil)

	assert.Error(t, h.Handle(context.Background(), []byte(`not json`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"profit":1}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"order":5,"time":"yesterday"}`)))
	assert.Empty(t, store.stored)

	store.err = errors.New("clickhouse down")
	assert.Error(t, h.Handle(context.Background(), []byte(`{"order":5,"entry":"out"}`)))
}
