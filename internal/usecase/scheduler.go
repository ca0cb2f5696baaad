package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"FusionTrader/pkg/logger"
)

// CycleRunner is what the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) CycleReport
}

// Scheduler runs one cycle immediately and then every interval. A cycle that
// overruns the interval makes the next tick skip.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	log      *logger.Logger

	cron   *cron.Cron
	job    cron.Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(runner CycleRunner, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, log: log}
}

func (s *Scheduler) Start() error {
	if s.interval < time.Second {
		return fmt.Errorf("cycle interval must be at least 1s, got %s", s.interval)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{log: s.log}
	s.cron = cron.New(cron.WithLogger(cl))
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.runCycle))
	s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()

	s.log.Info("scheduler started", logger.Duration("interval_ms", s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
	return nil
}

func (s *Scheduler) runCycle() {
	if s.ctx.Err() != nil {
		return
	}
	report := s.runner.RunCycle(s.ctx)
	s.log.Info("waiting for next cycle",
		logger.String("cycle_id", report.ID),
		logger.Duration("took_ms", time.Since(report.Started)))
}

// Stop prevents new cycles and waits for the one in flight, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
