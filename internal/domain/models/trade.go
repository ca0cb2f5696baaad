package models

import (
	"encoding/json"
	"fmt"
	"time"

	"FusionTrader/pkg/util"
)

// RiskPlan is derived from a decision and the current ATR; consumed once.
type RiskPlan struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Volume     float64 `json:"volume"`
	ATR        float64 `json:"atr"`
	SLPoints   int64   `json:"sl_points"`
	TPPoints   int64   `json:"tp_points"`
}

// OrderRequest is what gets sent to the venue.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Deviation  int     `json:"deviation"`
	Magic      int64   `json:"magic"`
	Comment    string  `json:"comment"`
}

// OrderResult is the venue's answer. Ticket is only meaningful on success.
type OrderResult struct {
	Success bool   `json:"success"`
	Ticket  int64  `json:"order"`
	RetCode int    `json:"retcode"`
	Comment string `json:"comment"`
}

// ExecutionResult is returned to the control loop. Journaled is true only when
// the order filled and its journal entry was confirmed on storage.
type ExecutionResult struct {
	Plan      RiskPlan    `json:"plan"`
	Order     OrderResult `json:"order"`
	Journaled bool        `json:"journaled"`
}

// JournalEntry is one line of the trade journal.
type JournalEntry struct {
	Timestamp  time.Time          `json:"timestamp"`
	Ticket     int64              `json:"ticket"`
	Symbol     string             `json:"symbol"`
	Signal     Action             `json:"signal"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
}

// UnmarshalJSON accepts zone-less ISO timestamps written by older journals.
func (e *JournalEntry) UnmarshalJSON(b []byte) error {
	type alias JournalEntry
	aux := struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	t, ok := util.ParseTime(aux.Timestamp)
	if !ok {
		return fmt.Errorf("journal timestamp %q not recognized", aux.Timestamp)
	}
	e.Timestamp = t
	return nil
}

// DealEntry mirrors the venue's deal direction flag.
type DealEntry string

const (
	DealEntryIn  DealEntry = "in"
	DealEntryOut DealEntry = "out"
)

// DealOutcome is one realized deal from the venue history. Ticket is the
// order id that opened the position.
type DealOutcome struct {
	Ticket int64     `json:"order"`
	Profit float64   `json:"profit"`
	Entry  DealEntry `json:"entry"`
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
}
