package di

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"FusionTrader/internal/domain/repository"
	domsvc "FusionTrader/internal/domain/service"
	"FusionTrader/internal/handler/api"
	"FusionTrader/internal/handler/ws"
	internalrepo "FusionTrader/internal/repository"
	svcmetrics "FusionTrader/internal/service/metrics"
	"FusionTrader/internal/service/ratelimit"
	"FusionTrader/internal/services/analytics"
	"FusionTrader/internal/usecase"
	"FusionTrader/pkg/cache"
	pkgch "FusionTrader/pkg/clickhouse"
	"FusionTrader/pkg/config"
	xhttp "FusionTrader/pkg/http"
	pkgkafka "FusionTrader/pkg/kafka"
	"FusionTrader/pkg/logger"
	"FusionTrader/pkg/metrics"
	"FusionTrader/pkg/server"
)

// ConfigPath is the file the running config was loaded from. The weight
// store rewrites it and the holder reloads it.
type ConfigPath string

const tunerLockTTL = 5 * time.Minute

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Environment: cfg.Environment,
	})
}

func ProvideHolder(path ConfigPath, cfg *config.Config) *config.Holder {
	return config.NewHolder(string(path), cfg)
}

// ProvideCache returns a Redis-backed layered cache when Redis is enabled,
// otherwise a process-local one.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(1024)), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc, time.Minute), nil
}

func ProvideLimiter() *ratelimit.Limiter { return ratelimit.New() }

// ProvideSources builds the signal sources and registers their metrics.
func ProvideSources(cfg *config.Config, c cache.Service, limiter *ratelimit.Limiter, log *logger.Logger) []domsvc.SignalSource {
	svcmetrics.Register()
	return analytics.NewSources(cfg, c, limiter, log)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects and applies the schema. Nil when
// ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, log *logger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse ready",
		logger.String("host", cfg.ClickHouse.Host),
		logger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideTradeStore is nil when ClickHouse is disabled.
func ProvideTradeStore(cfg *config.Config, ch *pkgch.Client) *internalrepo.CHTradeStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHTradeStore(ch, cfg.ClickHouse.Database)
}

// ProvideBridgeVenue is nil when no bridge URL is configured.
func ProvideBridgeVenue(cfg *config.Config) *internalrepo.BridgeVenue {
	if cfg.Venue.BridgeURL == "" {
		return nil
	}
	return internalrepo.NewBridgeVenue(cfg.Venue.BridgeURL, cfg.Timeouts.Venue,
		xhttp.WithBearerToken(cfg.Venue.BridgeToken))
}

func ProvideMarketData(cfg *config.Config, ch *pkgch.Client, bridge *internalrepo.BridgeVenue, log *logger.Logger) (repository.MarketData, error) {
	switch cfg.MarketData.Source {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("market data: clickhouse is not enabled")
		}
		return internalrepo.NewCHMarketData(ch, cfg.ClickHouse.Database, log), nil
	default:
		if bridge == nil {
			return nil, fmt.Errorf("market data: venue.bridge_url is not set")
		}
		return bridge, nil
	}
}

// ProvideVenue returns the order venue. Paper and bridge venues both report
// their own deal history.
func ProvideVenue(cfg *config.Config, data repository.MarketData, bridge *internalrepo.BridgeVenue, log *logger.Logger) (repository.ExecutionVenue, error) {
	if cfg.Venue.Type == "bridge" {
		if bridge == nil {
			return nil, fmt.Errorf("venue: venue.bridge_url is not set")
		}
		return bridge, nil
	}
	p := cfg.Venue.Paper
	return internalrepo.NewPaperVenue(data, repository.NormalizeTimeframe(cfg.TradingParameters.Timeframe), internalrepo.PaperSettings{
		SpreadPoints: p.SpreadPoints,
		Point:        p.Point,
		Digits:       p.Digits,
		ContractSize: p.ContractSize,
	}, log), nil
}

// ProvideDealHistory picks where the tuner reads realized profit from.
func ProvideDealHistory(cfg *config.Config, venue repository.ExecutionVenue, store *internalrepo.CHTradeStore) (repository.DealHistory, error) {
	if cfg.EvaluatorSettings.OutcomeSource == "clickhouse" {
		if store == nil {
			return nil, fmt.Errorf("deal history: clickhouse is not enabled")
		}
		return store, nil
	}
	h, ok := venue.(repository.DealHistory)
	if !ok {
		return nil, fmt.Errorf("deal history: venue %T has no deal history", venue)
	}
	return h, nil
}

// ProvideJournal is the file journal, mirrored into ClickHouse when enabled.
func ProvideJournal(cfg *config.Config, store *internalrepo.CHTradeStore, log *logger.Logger) repository.Journal {
	file := internalrepo.NewFileJournal(cfg.EvaluatorSettings.JournalFile, log)
	if store == nil || !cfg.ClickHouse.MirrorJournal {
		return file
	}
	return internalrepo.NewMirroredJournal(file, store, log)
}

// ProvideStatusHub shares server.cors_origins with the HTTP CORS middleware.
func ProvideStatusHub(cfg *config.Config, log *logger.Logger) *ws.StatusHub {
	return ws.NewStatusHub(log, cfg.Server.CORSOrigins)
}

// ProvideStatusSink writes the status file and feeds the websocket hub.
func ProvideStatusSink(cfg *config.Config, hub *ws.StatusHub) repository.StatusSink {
	return internalrepo.FanoutStatusSink{
		internalrepo.NewFileStatusSink(cfg.SystemFiles.StatusFile),
		hub,
	}
}

func ProvideEvaluationMarker(cfg *config.Config) repository.EvaluationMarker {
	return internalrepo.NewFileEvaluationMarker(cfg.SystemFiles.EvaluationMarker)
}

func ProvideWeightStore(path ConfigPath) repository.WeightStore {
	return internalrepo.NewYAMLWeightStore(string(path))
}

// ProvideKafkaProducer is nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideKafkaEvents(cfg *config.Config, producer *pkgkafka.Producer) *internalrepo.KafkaEventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, internalrepo.EventTopics{
		Decisions:  cfg.Kafka.Topics.Decisions,
		Executions: cfg.Kafka.Topics.Executions,
	})
}

// ProvideEventPublisher returns a nil interface, not a typed nil, when Kafka
// is disabled so callers can test it against nil.
func ProvideEventPublisher(ev *internalrepo.KafkaEventPublisher) repository.EventPublisher {
	if ev == nil {
		return nil
	}
	return ev
}

// ProvideLogPublisher feeds the error-log collector; nil without Kafka.
func ProvideLogPublisher(ev *internalrepo.KafkaEventPublisher) logger.Publisher {
	if ev == nil {
		return nil
	}
	return ev
}

// ProvideKafkaConsumer ingests closed deals into ClickHouse. It needs both
// Kafka and ClickHouse; otherwise it is nil.
func ProvideKafkaConsumer(cfg *config.Config, store *internalrepo.CHTradeStore, m repository.Metrics, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || store == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewDealOutcomeHandler(cfg.Kafka.Topics.Deals, store, m))
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			m.RecordError("deal_ingest")
			log.Error("deal message dropped",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.Error(err))
		},
	})
	return consumer, nil
}

func ProvideMarketContextLoader(data repository.MarketData) *usecase.MarketContextLoader {
	return usecase.NewMarketContextLoader(data)
}

func ProvideDecisionEngine(cfg *config.Config, sink repository.StatusSink, m repository.Metrics, log *logger.Logger) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(cfg, sink, m, log)
}

func ProvideExecutor(venue repository.ExecutionVenue, journal repository.Journal, m repository.Metrics, log *logger.Logger) *usecase.Executor {
	return usecase.NewExecutor(venue, journal, m, log)
}

// ProvideWeightTuner takes the shared cache as a cross-process lock only
// when distributed_lock is set.
func ProvideWeightTuner(
	cfg *config.Config,
	journal repository.Journal,
	deals repository.DealHistory,
	store repository.WeightStore,
	marker repository.EvaluationMarker,
	c cache.Service,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.WeightTuner {
	var lock cache.Locker
	if cfg.EvaluatorSettings.DistributedLock {
		lock = c
	}
	return usecase.NewWeightTuner(journal, deals, store, marker, lock, m, log, cfg.EvaluatorSettings.HistoryPadding)
}

func ProvideOrchestrator(
	holder *config.Holder,
	loader *usecase.MarketContextLoader,
	sources []domsvc.SignalSource,
	engine *usecase.DecisionEngine,
	executor *usecase.Executor,
	tuner *usecase.WeightTuner,
	events repository.EventPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Orchestrator {
	return usecase.NewOrchestrator(holder, loader, sources, engine, executor, tuner, events, m, log)
}

func ProvideScheduler(cfg *config.Config, orch *usecase.Orchestrator, log *logger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(orch, cfg.TradingParameters.CycleInterval, log)
}

func ProvideOpsHandler(
	holder *config.Holder,
	hub *ws.StatusHub,
	journal repository.Journal,
	marker repository.EvaluationMarker,
	orch *usecase.Orchestrator,
	limiter *ratelimit.Limiter,
	log *logger.Logger,
) *api.OpsEchoHandler {
	return api.NewOpsEchoHandler(holder, hub, journal, marker, orch, limiter, api.EvaluateLimit{}, log)
}

// ProvideHTTPServer is nil when the ops server is disabled.
func ProvideHTTPServer(cfg *config.Config, ops *api.OpsEchoHandler, hub *ws.StatusHub, log *logger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	return xhttp.NewServer([]xhttp.Handler{ops, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithLogger(log),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	scheduler *usecase.Scheduler,
	httpServer *xhttp.Server,
	hub *ws.StatusHub,
	consumer *pkgkafka.Consumer,
	events repository.EventPublisher,
	logSink logger.Publisher,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	return server.New(server.Components{
		Config:     cfg,
		Logger:     log,
		Scheduler:  scheduler,
		HTTP:       httpServer,
		Hub:        hub,
		Consumer:   consumer,
		Events:     events,
		LogSink:    logSink,
		ClickHouse: ch,
		Cache:      c,
	})
}

// Evaluator runs one tuning pass outside the daemon.
type Evaluator struct {
	Holder *config.Holder
	Tuner  *usecase.WeightTuner
	Logger *logger.Logger
	ch     *pkgch.Client
	cache  cache.Service
}

func ProvideEvaluator(holder *config.Holder, tuner *usecase.WeightTuner, log *logger.Logger, ch *pkgch.Client, c cache.Service) *Evaluator {
	return &Evaluator{Holder: holder, Tuner: tuner, Logger: log, ch: ch, cache: c}
}

// Run tunes the current weights and reloads the config when they changed.
func (e *Evaluator) Run(ctx context.Context) (usecase.TuneResult, error) {
	cfg := e.Holder.Current()
	res, err := e.Tuner.Run(ctx, cfg.StrategyWeights, cfg.EvaluatorSettings.LearningRate)
	if err != nil {
		return res, err
	}
	if res.Changed() {
		if _, rerr := e.Holder.Reload(); rerr != nil {
			e.Logger.Warn("config reload after tuning failed", logger.Error(rerr))
		}
	}
	return res, nil
}

// Close releases the infrastructure clients.
func (e *Evaluator) Close() {
	if e.ch != nil {
		_ = e.ch.Close()
	}
	if e.cache != nil {
		_ = e.cache.Close()
	}
}
