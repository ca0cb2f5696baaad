package repository

import "errors"

var (
	ErrOrderRejected    = errors.New("order rejected by venue")
	ErrJournalWrite     = errors.New("journal write failed")
	ErrTuneInProgress   = errors.New("weight tuning already in progress")
	ErrInsufficientData = errors.New("insufficient market data")
	ErrNotFound         = errors.New("not found")
)
