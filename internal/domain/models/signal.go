package models

import (
	"math"
	"time"
)

// Action is the discrete outcome of fusing analyzer scores.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// IsTrade reports whether the action results in an order.
func (a Action) IsTrade() bool { return a == ActionBuy || a == ActionSell }

// ScoreStatus tells a real opinion apart from a neutral placeholder.
type ScoreStatus string

const (
	ScoreOK           ScoreStatus = "ok"
	ScoreInsufficient ScoreStatus = "insufficient"
	ScoreUnavailable  ScoreStatus = "unavailable"
)

// AnalyzerScore is one source's opinion for one instrument in one cycle.
// Value is in [-1, 1]; non-OK statuses always carry Value 0.
type AnalyzerScore struct {
	Name      string      `json:"name"`
	Value     float64     `json:"value"`
	Narrative string      `json:"narrative"`
	Status    ScoreStatus `json:"status"`
}

// NeutralScore builds a zero score with an explanation.
func NeutralScore(name string, status ScoreStatus, narrative string) AnalyzerScore {
	return AnalyzerScore{Name: name, Value: 0, Narrative: narrative, Status: status}
}

// Clamp limits v to [-1, 1]. NaN maps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// WeightSet maps analyzer name to a non-negative weight. A set is replaced
// wholesale, never edited in place once published.
type WeightSet map[string]float64

func (w WeightSet) Sum() float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s
}

func (w WeightSet) Clone() WeightSet {
	out := make(WeightSet, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Valid reports whether every weight is finite and >= 0 and the set sums to 1 within eps.
func (w WeightSet) Valid(eps float64) bool {
	if len(w) == 0 {
		return false
	}
	for _, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= eps
}

// Decision is created once per instrument per cycle and never modified.
type Decision struct {
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	Scores     map[string]float64 `json:"scores"`
	Timestamp  time.Time          `json:"timestamp"`
}

// StatusSnapshot is the document the dashboard reads; the file sink
// overwrites it on every decision.
type StatusSnapshot struct {
	Timestamp  time.Time          `json:"timestamp"`
	AIName     string             `json:"ai_name"`
	Status     string             `json:"status"`
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	Scores     map[string]float64 `json:"scores"`
}
