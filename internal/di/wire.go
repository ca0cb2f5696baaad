//go:build wireinject
// +build wireinject

package di

import (
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideHolder,
	ProvideCache,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideTradeStore,
)

var tradingSet = wire.NewSet(
	ProvideBridgeVenue,
	ProvideMarketData,
	ProvideVenue,
	ProvideDealHistory,
	ProvideJournal,
	ProvideEvaluationMarker,
	ProvideWeightStore,
	ProvideWeightTuner,
)

// InitializeApp wires the daemon: trading loop, ops HTTP and Kafka.
func InitializeApp(path ConfigPath, cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		tradingSet,

		ProvideLimiter,
		ProvideSources,
		ProvideStatusHub,
		ProvideStatusSink,
		ProvideKafkaProducer,
		ProvideKafkaEvents,
		ProvideEventPublisher,
		ProvideLogPublisher,
		ProvideKafkaConsumer,

		ProvideMarketContextLoader,
		ProvideDecisionEngine,
		ProvideExecutor,
		ProvideOrchestrator,
		ProvideScheduler,

		ProvideOpsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeEvaluator wires just what one tuning pass needs.
func InitializeEvaluator(path ConfigPath, cfg *config.Config) (*Evaluator, error) {
	wire.Build(
		infraSet,
		tradingSet,
		ProvideEvaluator,
	)
	return &Evaluator{}, nil
}
