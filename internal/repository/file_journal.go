package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/logger"
)

// FileJournal is the append-only JSONL trade journal. It is the source of
// truth for the tuner; entries are never rewritten.
type FileJournal struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

func NewFileJournal(path string, log *logger.Logger) *FileJournal {
	return &FileJournal{path: path, log: log}
}

func (j *FileJournal) Path() string { return j.path }

func (j *FileJournal) Append(_ context.Context, e models.JournalEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync journal: %w", err)
	}
	return f.Close()
}

// ReadAll returns every entry in append order. A missing file reads as
// empty; so does a journal with any line that does not decode.
func (j *FileJournal) ReadAll(_ context.Context) []models.JournalEntry {
	j.mu.Lock()
	b, err := os.ReadFile(j.path)
	j.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		j.log.Warn("trade journal unreadable", logger.String("path", j.path), logger.Error(err))
		return nil
	}

	var out []models.JournalEntry
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e models.JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			j.log.Warn("trade journal corrupted, ignoring its contents",
				logger.String("path", j.path),
				logger.Int("line", n),
				logger.Error(err))
			return nil
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		j.log.Warn("trade journal unreadable", logger.String("path", j.path), logger.Error(err))
		return nil
	}
	return out
}

// Tail returns up to limit of the newest entries, optionally for one symbol,
// oldest first.
func Tail(entries []models.JournalEntry, symbol string, limit int) []models.JournalEntry {
	out := make([]models.JournalEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol != "" && entries[i].Symbol != symbol {
			continue
		}
		out = append(out, entries[i])
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out
}

var _ domrepo.Journal = (*FileJournal)(nil)
