//go:build wireinject
// +build wireinject

package di

import (
	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/pkg/config"
	"FinAgent/pkg/metrics"
	"FinAgent/pkg/server"

	"github.com/google/wire"
)

var baseSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),
)

var agentSet = wire.NewSet(
	ProvideRedisCache,
	ProvideCache,
	ProvideAgentStore,
	ProvideClickHouseClient,
	ProvideBarStore,
	ProvideBinanceClient,
	ProvideSourceResolver,
	ProvidePredictorFactory,
	ProvideAgentService,
)

// InitializeTooling wires the one-shot CLI commands.
func InitializeTooling(cfg *config.Config) (*Tooling, func(), error) {
	wire.Build(baseSet, agentSet, ProvideFetcher, ProvideTooling)
	return nil, nil, nil
}

// InitializeServeApp wires the HTTP API.
func InitializeServeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		baseSet,
		agentSet,
		ProvideKafkaProducer,
		ProvideTrainPublisher,
		ProvideTrainEnqueuer,
		ProvideLimiter,
		ProvideAgentsHandler,
		ProvideHTTPServer,
		ProvideServeApp,
	)
	return nil, nil, nil
}

// InitializeWorkerApp wires the training queue consumer.
func InitializeWorkerApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(baseSet, agentSet, ProvideKafkaProducer, ProvideTrainWorker, ProvideWorkerApp)
	return nil, nil, nil
}

// InitializeLiveApp wires live execution of one agent.
func InitializeLiveApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		baseSet,
		agentSet,
		ProvideKafkaProducer,
		ProvideDecisionPublisher,
		ProvideBarsConsumer,
		ProvideLiveApp,
	)
	return nil, nil, nil
}
