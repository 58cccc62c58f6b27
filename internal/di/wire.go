//go:build wireinject
// +build wireinject

package di

import (
	"comove/pkg/config"
	"comove/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideTracerProvider,
		ProvideTracer,
		ProvideTracingShutdown,
		ProvideSmoothing,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideQueue,

		// Repositories
		ProvideSeriesSource,
		ProvideCache,
		ProvideReportCache,
		ProvideReportPipeline,

		// Use cases and transport
		ProvideHub,
		ProvideAnalysisUseCase,
		ProvideRateLimiter,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
