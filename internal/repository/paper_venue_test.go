package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/logger"
)

type barFeed struct {
	mu   sync.Mutex
	bars map[string][]models.Candle
}

func (f *barFeed) push(symbol string, c models.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bars == nil {
		f.bars = map[string][]models.Candle{}
	}
	c.Symbol = symbol
	f.bars[symbol] = append(f.bars[symbol], c)
}

func (f *barFeed) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bars[symbol]
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return append([]models.Candle(nil), b...), nil
}

var paperStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newPaper(feed *barFeed) (*PaperVenue, *time.Time) {
	now := paperStart.Add(5 * time.Minute)
	v := NewPaperVenue(feed, domrepo.TFM15, PaperSettings{SpreadPoints: 2, Point: 0.0001, Digits: 5, ContractSize: 100000}, logger.NewNop())
	v.now = func() time.Time { return now }
	return v, &now
}

func TestPaperVenueQuoteAppliesSpread(t *testing.T) {
	feed := &barFeed{}
	feed.push("EURUSD", models.Candle{Bucket: paperStart, Open: 1.1, High: 1.101, Low: 1.099, Close: 1.1})
	v, _ := newPaper(feed)

	q, err := v.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.0999, q.Bid)
	assert.Equal(t, 1.1001, q.Ask)

	_, err = v.Quote(context.Background(), "GBPUSD")
	assert.ErrorIs(t, err, domrepo.ErrInsufficientData)
}

func TestPaperVenueRejectsBadStops(t *testing.T) {
	v, _ := newPaper(&barFeed{})
	res, err := v.SendOrder(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Action: models.ActionBuy, Volume: 0.01, Price: 1.1, StopLoss: 1.103, TakeProfit: 1.106,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, retcodeInvalidStops, res.RetCode)

	res, err = v.SendOrder(context.Background(), models.OrderRequest{Symbol: "EURUSD", Action: models.ActionSell, Price: 1.1})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPaperVenueClosesOnTargetAndStop(t *testing.T) {
	feed := &barFeed{}
	feed.push("EURUSD", models.Candle{Bucket: paperStart, High: 1.101, Low: 1.099, Close: 1.1})
	feed.push("GBPUSD", models.Candle{Bucket: paperStart, High: 1.271, Low: 1.269, Close: 1.27})
	v, now := newPaper(feed)
	ctx := context.Background()

	buy, err := v.SendOrder(ctx, models.OrderRequest{
		Symbol: "EURUSD", Action: models.ActionBuy, Volume: 0.01, Price: 1.1, StopLoss: 1.097, TakeProfit: 1.106,
	})
	require.NoError(t, err)
	require.True(t, buy.Success)
	sell, err := v.SendOrder(ctx, models.OrderRequest{
		Symbol: "GBPUSD", Action: models.ActionSell, Volume: 0.02, Price: 1.27, StopLoss: 1.273, TakeProfit: 1.264,
	})
	require.NoError(t, err)
	require.NotEqual(t, buy.Ticket, sell.Ticket)

	feed.push("EURUSD", models.Candle{Bucket: paperStart.Add(15 * time.Minute), High: 1.103, Low: 1.099, Close: 1.102})
	feed.push("EURUSD", models.Candle{Bucket: paperStart.Add(30 * time.Minute), High: 1.107, Low: 1.101, Close: 1.106})
	// one bar through both levels: the stop wins
	feed.push("GBPUSD", models.Candle{Bucket: paperStart.Add(15 * time.Minute), High: 1.274, Low: 1.263, Close: 1.27})
	*now = paperStart.Add(45 * time.Minute)

	deals, err := v.HistoryDeals(ctx, paperStart, paperStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, v.OpenPositions())

	profits := map[int64]float64{}
	closes := 0
	for _, d := range deals {
		if d.Entry == models.DealEntryOut {
			closes++
			profits[d.Ticket] += d.Profit
		}
	}
	assert.Equal(t, 2, closes)
	assert.Equal(t, 6.0, profits[buy.Ticket])
	assert.Equal(t, -6.0, profits[sell.Ticket])
}

func TestPaperVenueHistoryWindow(t *testing.T) {
	feed := &barFeed{}
	feed.push("EURUSD", models.Candle{Bucket: paperStart, High: 1.101, Low: 1.099, Close: 1.1})
	v, _ := newPaper(feed)
	ctx := context.Background()

	_, err := v.SendOrder(ctx, models.OrderRequest{
		Symbol: "EURUSD", Action: models.ActionBuy, Volume: 0.01, Price: 1.1, StopLoss: 1.097, TakeProfit: 1.106,
	})
	require.NoError(t, err)

	deals, err := v.HistoryDeals(ctx, paperStart.Add(time.Hour), paperStart.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, deals)
	assert.Equal(t, 1, v.OpenPositions())
}
