package models

import "time"

// Requests and responses for the ops HTTP endpoints.

type JournalRequest struct {
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,alphanum,max=16"`
}

type EvaluateRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

type WeightsResponse struct {
	Weights        WeightSet  `json:"weights"`
	LastEvaluation *time.Time `json:"last_evaluation,omitempty"`
	TradesCounted  int64      `json:"trades_counted"`
	TradesAtTune   int64      `json:"trades_at_last_tune"`
}

type JournalResponse struct {
	Count   int            `json:"count"`
	Entries []JournalEntry `json:"entries"`
}
