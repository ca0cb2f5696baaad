package models

import "time"

// Candle represents an OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"time"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"tick_volume"`
}

// Quote is the venue's best bid/ask at a point in time.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// SymbolInfo carries the broker precision of an instrument.
type SymbolInfo struct {
	Symbol string  `json:"symbol"`
	Point  float64 `json:"point"`
	Digits int32   `json:"digits"`
}

// MarketContext is what every signal source sees for one instrument in one
// cycle. Candles are oldest first.
type MarketContext struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
}

// Closes extracts close prices, oldest first.
func (m MarketContext) Closes() []float64 {
	out := make([]float64, len(m.Candles))
	for i, c := range m.Candles {
		out[i] = c.Close
	}
	return out
}

// Last returns the newest bar. ok is false when there are no bars.
func (m MarketContext) Last() (c Candle, ok bool) {
	if len(m.Candles) == 0 {
		return Candle{}, false
	}
	return m.Candles[len(m.Candles)-1], true
}
