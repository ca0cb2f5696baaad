package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/internal/usecase"
	"FusionTrader/pkg/cache"
	pkgch "FusionTrader/pkg/clickhouse"
	"FusionTrader/pkg/config"
	xhttp "FusionTrader/pkg/http"
	pkgkafka "FusionTrader/pkg/kafka"
	applogger "FusionTrader/pkg/logger"
)

// Components is everything App starts and stops. Optional parts are nil
// when disabled in the config.
type Components struct {
	Config     *config.Config
	Logger     *applogger.Logger
	Scheduler  *usecase.Scheduler
	HTTP       *xhttp.Server
	Hub        io.Closer
	Consumer   *pkgkafka.Consumer
	Events     domrepo.EventPublisher
	LogSink    applogger.Publisher
	ClickHouse *pkgch.Client
	Cache      cache.Service
}

// App encapsulates the entire application lifecycle.
type App struct {
	c Components
}

// New creates a new App instance with all dependencies.
func New(c Components) *App {
	if c.Logger == nil {
		c.Logger = applogger.NewNop()
	}
	return &App{c: c}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}
	<-ctx.Done()
	a.c.Logger.Info("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), a.c.Config.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(sctx)
}

// Start launches the background components without blocking.
func (a *App) Start() error {
	l := a.c.Logger
	cfg := a.c.Config

	if a.c.LogSink != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Kafka.LogCollector.Interval,
			CountThreshold: cfg.Kafka.LogCollector.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Source:         cfg.SystemIdentity.Name,
			Publisher:      a.c.LogSink,
		})
		l.Info("log collector started", applogger.String("topic", cfg.Kafka.Topics.Logs))
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
	}

	if err := a.c.Scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	l.Info("trading loop started",
		applogger.String("ai_name", cfg.SystemIdentity.Name),
		applogger.Strings("symbols", cfg.TradingParameters.SymbolsToTrade),
		applogger.String("venue", cfg.Venue.Type))
	return nil
}

// Shutdown stops components in dependency order: no new cycles first, then
// the surfaces that feed or read them, then the infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	l := a.c.Logger
	started := time.Now()
	var errs []error

	if a.c.Scheduler != nil {
		if err := a.c.Scheduler.Stop(ctx); err != nil {
			l.Warn("scheduler stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			l.Warn("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.Hub != nil {
		_ = a.c.Hub.Close()
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	// the collector publishes through the producer, so it flushes first
	if a.c.LogSink != nil {
		l.RemoveCollector()
	}
	if a.c.Events != nil {
		if err := a.c.Events.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	l.Info("shutdown complete", applogger.Duration("took", time.Since(started)))
	return errors.Join(errs...)
}
