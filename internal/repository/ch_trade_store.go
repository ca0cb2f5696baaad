package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	pkgch "FusionTrader/pkg/clickhouse"
)

// CHTradeStore keeps a queryable copy of the journal and the closed deals
// ingested from the bridge.
type CHTradeStore struct {
	db           *sql.DB
	journalTable string
	dealsTable   string
}

func NewCHTradeStore(ch *pkgch.Client, database string) *CHTradeStore {
	return &CHTradeStore{
		db:           ch.DB(),
		journalTable: database + ".trade_journal",
		dealsTable:   database + ".deal_outcomes",
	}
}

// MirrorEntry implements JournalMirror.
func (s *CHTradeStore) MirrorEntry(ctx context.Context, e models.JournalEntry) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, ticket, symbol, signal, confidence, scores) VALUES (?, ?, ?, ?, ?, ?)", s.journalTable)
	scores := e.Scores
	if scores == nil {
		scores = map[string]float64{}
	}
	if _, err := s.db.ExecContext(ctx, q, e.Timestamp.UTC(), e.Ticket, e.Symbol, string(e.Signal), e.Confidence, scores); err != nil {
		return fmt.Errorf("mirror journal entry %d: %w", e.Ticket, err)
	}
	return nil
}

func (s *CHTradeStore) StoreDeal(ctx context.Context, d models.DealOutcome) error {
	q := fmt.Sprintf("INSERT INTO %s (ticket, profit, entry, symbol, time) VALUES (?, ?, ?, ?, ?)", s.dealsTable)
	if _, err := s.db.ExecContext(ctx, q, d.Ticket, d.Profit, string(d.Entry), d.Symbol, d.Time.UTC()); err != nil {
		return fmt.Errorf("store deal %d: %w", d.Ticket, err)
	}
	return nil
}

func (s *CHTradeStore) HistoryDeals(ctx context.Context, from, to time.Time) ([]models.DealOutcome, error) {
	q := fmt.Sprintf("SELECT ticket, profit, entry, symbol, time FROM %s WHERE time >= ? AND time <= ? ORDER BY time ASC", s.dealsTable)
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("history deals: %w", err)
	}
	defer rows.Close()

	var out []models.DealOutcome
	for rows.Next() {
		var d models.DealOutcome
		var entry string
		if err := rows.Scan(&d.Ticket, &d.Profit, &entry, &d.Symbol, &d.Time); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		d.Entry = models.DealEntry(entry)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *CHTradeStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var (
	_ domrepo.OutcomeStore = (*CHTradeStore)(nil)
	_ JournalMirror        = (*CHTradeStore)(nil)
)
