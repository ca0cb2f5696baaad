package repository

import (
	"context"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/logger"
)

// JournalMirror receives a copy of every journaled trade.
type JournalMirror interface {
	MirrorEntry(ctx context.Context, e models.JournalEntry) error
}

// MirroredJournal writes the primary journal first and then copies the entry
// to a mirror. Mirror failures are logged, never returned.
type MirroredJournal struct {
	primary domrepo.Journal
	mirror  JournalMirror
	log     *logger.Logger
}

func NewMirroredJournal(primary domrepo.Journal, mirror JournalMirror, log *logger.Logger) *MirroredJournal {
	return &MirroredJournal{primary: primary, mirror: mirror, log: log}
}

func (m *MirroredJournal) Append(ctx context.Context, e models.JournalEntry) error {
	if err := m.primary.Append(ctx, e); err != nil {
		return err
	}
	if err := m.mirror.MirrorEntry(ctx, e); err != nil {
		m.log.Warn("journal mirror write failed",
			logger.Int64("ticket", e.Ticket),
			logger.String("symbol", e.Symbol),
			logger.Error(err))
	}
	return nil
}

func (m *MirroredJournal) ReadAll(ctx context.Context) []models.JournalEntry {
	return m.primary.ReadAll(ctx)
}
