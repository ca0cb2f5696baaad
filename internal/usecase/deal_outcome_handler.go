package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	pkgkafka "FusionTrader/pkg/kafka"
	"FusionTrader/pkg/util"
)

// DealOutcomeHandler consumes closed deals published by the broker bridge and
// stores them for the tuner.
type DealOutcomeHandler struct {
	topic   string
	store   domrepo.OutcomeStore
	metrics domrepo.Metrics
}

func NewDealOutcomeHandler(topic string, store domrepo.OutcomeStore, metrics domrepo.Metrics) *DealOutcomeHandler {
	return &DealOutcomeHandler{topic: topic, store: store, metrics: metrics}
}

func (h *DealOutcomeHandler) Topic() string { return h.topic }

// incoming message schema: {order, profit, entry, symbol, time}; entry is
// "in"/"out" or the bridge's numeric 0/1, time is unix seconds, unix millis
// or an ISO string
func (h *DealOutcomeHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Order  int64           `json:"order"`
		Profit float64         `json:"profit"`
		Entry  json.RawMessage `json:"entry"`
		Symbol string          `json:"symbol"`
		Time   json.RawMessage `json:"time"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("deal_unmarshal")
		return fmt.Errorf("decode deal: %w", err)
	}
	if m.Order == 0 {
		h.recordError("deal_invalid")
		return fmt.Errorf("decode deal: missing order")
	}

	at, err := parseDealTime(m.Time)
	if err != nil {
		h.recordError("deal_invalid")
		return fmt.Errorf("decode deal %d: %w", m.Order, err)
	}

	entry := models.DealEntryIn
	if e := strings.Trim(string(m.Entry), `"`); strings.EqualFold(e, string(models.DealEntryOut)) || e == "1" {
		entry = models.DealEntryOut
	}

	start := time.Now()
	err = h.store.StoreDeal(ctx, models.DealOutcome{
		Ticket: m.Order,
		Profit: m.Profit,
		Entry:  entry,
		Symbol: m.Symbol,
		Time:   at,
	})
	if h.metrics != nil {
		h.metrics.RecordLatency("deal_store_seconds", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("deal_store")
		return err
	}
	return nil
}

func parseDealTime(raw json.RawMessage) (time.Time, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Now().UTC(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 { // ms
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return t, nil
}

func (h *DealOutcomeHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*DealOutcomeHandler)(nil)
