package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	xhttp "FusionTrader/pkg/http"
)

// BridgeVenue talks to the broker bridge over HTTP. It is the live execution
// venue, a market data source and the deal history.
type BridgeVenue struct {
	baseURL string
	client  *xhttp.Client
}

func NewBridgeVenue(baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) *BridgeVenue {
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &BridgeVenue{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(opts...),
	}
}

func (b *BridgeVenue) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("bridge get %s: %w", path, err)
	}
	return nil
}

// Health checks the bridge is reachable.
func (b *BridgeVenue) Health(ctx context.Context) error {
	return b.get(ctx, "/health", nil, nil)
}

func (b *BridgeVenue) SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	var info models.SymbolInfo
	if err := b.get(ctx, "/symbols/"+url.PathEscape(symbol), nil, &info); err != nil {
		return info, err
	}
	if info.Point <= 0 {
		return info, fmt.Errorf("bridge symbol %s: invalid point %v", symbol, info.Point)
	}
	if info.Symbol == "" {
		info.Symbol = symbol
	}
	return info, nil
}

type bridgeTick struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time"`
}

func (b *BridgeVenue) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var t bridgeTick
	if err := b.get(ctx, "/ticks/"+url.PathEscape(symbol), nil, &t); err != nil {
		return models.Quote{}, err
	}
	if t.Bid <= 0 || t.Ask <= 0 {
		return models.Quote{}, fmt.Errorf("bridge tick %s: no price", symbol)
	}
	return models.Quote{Symbol: symbol, Bid: t.Bid, Ask: t.Ask, Time: time.Unix(t.Time, 0).UTC()}, nil
}

// SendOrder posts the order once. A transport failure is returned as an
// error; a broker rejection comes back as Success=false.
func (b *BridgeVenue) SendOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	var res models.OrderResult
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + "/orders",
		Body:   req,
	}, &res)
	if err != nil {
		return res, fmt.Errorf("bridge post /orders: %w", err)
	}
	return res, nil
}

type bridgeBar struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume float64 `json:"tick_volume"`
}

func (b *BridgeVenue) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	var bars []bridgeBar
	q := map[string][]string{
		"timeframe": {string(tf)},
		"count":     {strconv.Itoa(n)},
	}
	if err := b.get(ctx, "/rates/"+url.PathEscape(symbol), q, &bars); err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(bars))
	for _, r := range bars {
		out = append(out, models.Candle{
			Bucket: time.Unix(r.Time, 0).UTC(),
			Symbol: symbol,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.TickVolume,
		})
	}
	return out, nil
}

type bridgeDeal struct {
	Order  int64           `json:"order"`
	Profit float64         `json:"profit"`
	Entry  json.RawMessage `json:"entry"`
	Symbol string          `json:"symbol"`
	Time   int64           `json:"time"`
}

// dealEntry maps the bridge's direction flag. Numeric 1 (out) and 3 (out by
// opposite position) close a position.
func dealEntry(raw json.RawMessage) models.DealEntry {
	switch strings.ToLower(strings.Trim(string(raw), `"`)) {
	case "1", "3", "out", "out_by":
		return models.DealEntryOut
	default:
		return models.DealEntryIn
	}
}

func (b *BridgeVenue) HistoryDeals(ctx context.Context, from, to time.Time) ([]models.DealOutcome, error) {
	var deals []bridgeDeal
	q := map[string][]string{
		"from": {strconv.FormatInt(from.Unix(), 10)},
		"to":   {strconv.FormatInt(to.Unix(), 10)},
	}
	if err := b.get(ctx, "/deals", q, &deals); err != nil {
		return nil, err
	}
	out := make([]models.DealOutcome, 0, len(deals))
	for _, d := range deals {
		out = append(out, models.DealOutcome{
			Ticket: d.Order,
			Profit: d.Profit,
			Entry:  dealEntry(d.Entry),
			Symbol: d.Symbol,
			Time:   time.Unix(d.Time, 0).UTC(),
		})
	}
	return out, nil
}

var (
	_ domrepo.ExecutionVenue = (*BridgeVenue)(nil)
	_ domrepo.MarketData     = (*BridgeVenue)(nil)
	_ domrepo.DealHistory    = (*BridgeVenue)(nil)
)
