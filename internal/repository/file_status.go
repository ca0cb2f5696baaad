package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/util"
)

// FileStatusSink overwrites a JSON status document for the dashboard.
type FileStatusSink struct {
	path string
}

func NewFileStatusSink(path string) *FileStatusSink {
	return &FileStatusSink{path: path}
}

func (s *FileStatusSink) Publish(_ context.Context, snap models.StatusSnapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := util.WriteFileAtomic(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write status %s: %w", s.path, err)
	}
	return nil
}

// FanoutStatusSink publishes to every sink and joins their errors.
type FanoutStatusSink []domrepo.StatusSink

func (f FanoutStatusSink) Publish(ctx context.Context, snap models.StatusSnapshot) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FileEvaluationMarker stores the time of the last applied weight change.
type FileEvaluationMarker struct {
	path string
}

func NewFileEvaluationMarker(path string) *FileEvaluationMarker {
	return &FileEvaluationMarker{path: path}
}

func (m *FileEvaluationMarker) Mark(_ context.Context, at time.Time) error {
	if err := util.WriteFileAtomic(m.path, []byte(at.UTC().Format(time.RFC3339Nano)), 0o644); err != nil {
		return fmt.Errorf("write evaluation marker: %w", err)
	}
	return nil
}

func (m *FileEvaluationMarker) Last(context.Context) (time.Time, bool) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return time.Time{}, false
	}
	return util.ParseTime(strings.TrimSpace(string(b)))
}

var (
	_ domrepo.StatusSink       = (*FileStatusSink)(nil)
	_ domrepo.StatusSink       = FanoutStatusSink(nil)
	_ domrepo.EvaluationMarker = (*FileEvaluationMarker)(nil)
)
