//go:build wireinject
// +build wireinject

package di

import (
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideKafkaProducer,
	ProvideLogCollector,
	ProvideKafkaConsumer,
	ProvidePostgresPool,
	ProvideRedisCache,
	ProvideCache,
)

var repositorySet = wire.NewSet(
	ProvideAsOfPolicy,
	ProvideFillPublisher,
	ProvideTradeJournal,
	ProvideBarStore,
	ProvideBarSource,
	ProvideRunRepository,
	ProvideBarStream,
)

var serviceSet = wire.NewSet(
	ProvideMarketData,
	ProvideRegimeScorer,
)

var usecaseSet = wire.NewSet(
	ProvideMiner,
	ProvideBacktestUseCase,
	ProvideSignalsUseCase,
	ProvideFillProcessor,
	ProvidePaperTrader,
	ProvidePipeline,
	ProvideBarCollector,
	ProvideKafkaBarsHandler,
	ProvideJobQueue,
	ProvideHTTPHandler,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		repositorySet,
		serviceSet,
		usecaseSet,
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return &server.App{}, nil
}
