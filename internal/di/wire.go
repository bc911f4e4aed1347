//go:build wireinject
// +build wireinject

package di

import (
	"AgriCast/internal/usecase"
	"AgriCast/pkg/config"
	"AgriCast/pkg/server"

	"github.com/google/wire"
)

var forecastSet = wire.NewSet(
	ProvideLogger,
	ProvidePrometheusRegistry,
	ProvideMetrics,

	// Infrastructure clients
	ProvidePostgresClient,
	ProvideClickHouseClient,
	ProvideKafkaProducer,

	// Repositories
	ProvideDataSources,
	ProvidePredictionSink,
	ProvideModelExporter,

	// Forecasting core
	ProvideTrainer,
	ProvideRegistry,
	ProvideForecastUseCase,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		forecastSet,

		// Product catalog
		ProvideCache,
		ProvideProductsUseCase,

		// Ingest
		ProvideIngestPipeline,
		ProvideKafkaConsumer,

		// Application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeForecaster wires the forecasting flow for one-shot batch runs.
func InitializeForecaster(cfg *config.Config) (*usecase.ForecastUseCase, func(), error) {
	wire.Build(forecastSet)
	return nil, nil, nil
}
