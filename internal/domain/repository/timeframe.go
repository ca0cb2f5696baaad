package repository

import "time"

// Timeframe represents bar resolution.
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TFM1:  time.Minute,
	TFM5:  5 * time.Minute,
	TFM15: 15 * time.Minute,
	TFM30: 30 * time.Minute,
	TFH1:  time.Hour,
	TFH4:  4 * time.Hour,
	TFD1:  24 * time.Hour,
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TFM15 }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bar length, or 0 for unknown timeframes.
func (tf Timeframe) Duration() time.Duration { return timeframeDurations[tf] }
