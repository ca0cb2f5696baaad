package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/logger"
)

// Broker-style return codes used by the paper venue.
const (
	retcodeDone          = 10009
	retcodeInvalidVolume = 10014
	retcodeInvalidStops  = 10016
)

// PaperSettings describe the simulated instrument.
type PaperSettings struct {
	SpreadPoints int
	Point        float64
	Digits       int32
	ContractSize float64
}

type paperPosition struct {
	ticket   int64
	symbol   string
	action   models.Action
	entry    decimal.Decimal
	sl, tp   decimal.Decimal
	volume   decimal.Decimal
	openedAt time.Time
}

// PaperVenue fills orders against the latest bar and closes positions when a
// later bar touches the stop or the target. It keeps its book in memory.
type PaperVenue struct {
	data     domrepo.MarketData
	tf       domrepo.Timeframe
	settings PaperSettings
	log      *logger.Logger
	now      func() time.Time

	mu    sync.Mutex
	next  int64
	open  []paperPosition
	deals []models.DealOutcome
}

func NewPaperVenue(data domrepo.MarketData, tf domrepo.Timeframe, s PaperSettings, log *logger.Logger) *PaperVenue {
	v := &PaperVenue{
		data:     data,
		tf:       tf,
		settings: s,
		log:      log,
		now:      time.Now,
	}
	// tickets from a previous run must not collide with this one
	v.next = v.now().Unix() * 1000
	return v
}

func (v *PaperVenue) SymbolInfo(_ context.Context, symbol string) (models.SymbolInfo, error) {
	return models.SymbolInfo{Symbol: symbol, Point: v.settings.Point, Digits: v.settings.Digits}, nil
}

// Quote is the latest close plus and minus half the configured spread.
func (v *PaperVenue) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	bars, err := v.data.GetLatestNCandles(ctx, symbol, 1, v.tf)
	if err != nil {
		return models.Quote{}, fmt.Errorf("paper quote %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return models.Quote{}, fmt.Errorf("paper quote %s: %w", symbol, domrepo.ErrInsufficientData)
	}
	last := bars[len(bars)-1]
	mid := decimal.NewFromFloat(last.Close)
	half := decimal.NewFromInt(int64(v.settings.SpreadPoints)).Mul(decimal.NewFromFloat(v.settings.Point)).Div(decimal.NewFromInt(2))
	return models.Quote{
		Symbol: symbol,
		Bid:    mid.Sub(half).Round(v.settings.Digits).InexactFloat64(),
		Ask:    mid.Add(half).Round(v.settings.Digits).InexactFloat64(),
		Time:   last.Bucket,
	}, nil
}

func (v *PaperVenue) SendOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if !req.Action.IsTrade() {
		return models.OrderResult{}, fmt.Errorf("paper order: action %s does not trade", req.Action)
	}
	if req.Volume <= 0 {
		return models.OrderResult{RetCode: retcodeInvalidVolume, Comment: "Invalid volume"}, nil
	}
	entry := decimal.NewFromFloat(req.Price)
	sl := decimal.NewFromFloat(req.StopLoss)
	tp := decimal.NewFromFloat(req.TakeProfit)
	long := req.Action == models.ActionBuy
	if (long && !(sl.LessThan(entry) && tp.GreaterThan(entry))) ||
		(!long && !(sl.GreaterThan(entry) && tp.LessThan(entry))) {
		return models.OrderResult{RetCode: retcodeInvalidStops, Comment: "Invalid stops"}, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.next++
	ticket := v.next
	at := v.now().UTC()
	v.open = append(v.open, paperPosition{
		ticket:   ticket,
		symbol:   req.Symbol,
		action:   req.Action,
		entry:    entry,
		sl:       sl,
		tp:       tp,
		volume:   decimal.NewFromFloat(req.Volume),
		openedAt: at,
	})
	v.deals = append(v.deals, models.DealOutcome{Ticket: ticket, Entry: models.DealEntryIn, Symbol: req.Symbol, Time: at})
	v.log.Info("paper order filled",
		logger.Int64("ticket", ticket),
		logger.String("symbol", req.Symbol),
		logger.String("action", string(req.Action)),
		logger.Float64("price", req.Price))
	return models.OrderResult{Success: true, Ticket: ticket, RetCode: retcodeDone, Comment: "Request executed"}, nil
}

// HistoryDeals settles open positions against the bars seen so far and
// returns every deal inside [from, to].
func (v *PaperVenue) HistoryDeals(ctx context.Context, from, to time.Time) ([]models.DealOutcome, error) {
	if err := v.Settle(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.DealOutcome
	for _, d := range v.deals {
		if !d.Time.Before(from) && !d.Time.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Settle walks the bars after each open position's fill and closes it at
// the first stop or target touched. The stop wins when one bar touches both.
func (v *PaperVenue) Settle(ctx context.Context) error {
	v.mu.Lock()
	symbols := map[string]time.Time{}
	for _, p := range v.open {
		if t, ok := symbols[p.symbol]; !ok || p.openedAt.Before(t) {
			symbols[p.symbol] = p.openedAt
		}
	}
	v.mu.Unlock()

	bars := map[string][]models.Candle{}
	for symbol, since := range symbols {
		n := v.barsSince(since)
		b, err := v.data.GetLatestNCandles(ctx, symbol, n, v.tf)
		if err != nil {
			return fmt.Errorf("paper settle %s: %w", symbol, err)
		}
		sort.SliceStable(b, func(i, j int) bool { return b[i].Bucket.Before(b[j].Bucket) })
		bars[symbol] = b
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	still := v.open[:0]
	for _, p := range v.open {
		exit, at, ok := firstTouch(p, bars[p.symbol])
		if !ok {
			still = append(still, p)
			continue
		}
		profit := v.profit(p, exit)
		v.deals = append(v.deals, models.DealOutcome{
			Ticket: p.ticket,
			Profit: profit,
			Entry:  models.DealEntryOut,
			Symbol: p.symbol,
			Time:   at,
		})
		v.log.Info("paper position closed",
			logger.Int64("ticket", p.ticket),
			logger.String("symbol", p.symbol),
			logger.Float64("exit", exit.InexactFloat64()),
			logger.Float64("profit", profit))
	}
	v.open = still
	return nil
}

// OpenPositions reports how many simulated positions are still open.
func (v *PaperVenue) OpenPositions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.open)
}

func (v *PaperVenue) barsSince(since time.Time) int {
	d := v.tf.Duration()
	if d <= 0 {
		d = 15 * time.Minute
	}
	n := int(v.now().Sub(since)/d) + 2
	if n > 5000 {
		n = 5000
	}
	return n
}

func firstTouch(p paperPosition, bars []models.Candle) (decimal.Decimal, time.Time, bool) {
	for _, b := range bars {
		if !b.Bucket.After(p.openedAt) {
			continue
		}
		high := decimal.NewFromFloat(b.High)
		low := decimal.NewFromFloat(b.Low)
		if p.action == models.ActionBuy {
			if low.LessThanOrEqual(p.sl) {
				return p.sl, b.Bucket, true
			}
			if high.GreaterThanOrEqual(p.tp) {
				return p.tp, b.Bucket, true
			}
			continue
		}
		if high.GreaterThanOrEqual(p.sl) {
			return p.sl, b.Bucket, true
		}
		if low.LessThanOrEqual(p.tp) {
			return p.tp, b.Bucket, true
		}
	}
	return decimal.Zero, time.Time{}, false
}

func (v *PaperVenue) profit(p paperPosition, exit decimal.Decimal) float64 {
	diff := exit.Sub(p.entry)
	if p.action == models.ActionSell {
		diff = diff.Neg()
	}
	return diff.Mul(p.volume).Mul(decimal.NewFromFloat(v.settings.ContractSize)).Round(2).InexactFloat64()
}

var (
	_ domrepo.ExecutionVenue = (*PaperVenue)(nil)
	_ domrepo.DealHistory    = (*PaperVenue)(nil)
)
