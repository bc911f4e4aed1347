package di

import (
	"context"
	"fmt"
	"time"

	"AgriCast/internal/domain/repository"
	"AgriCast/internal/handler/api"
	mid "AgriCast/internal/middleware"
	internalrepo "AgriCast/internal/repository"
	"AgriCast/internal/service/ratelimit"
	"AgriCast/internal/services/forecast"
	"AgriCast/internal/services/model"
	"AgriCast/internal/services/registry"
	"AgriCast/internal/usecase"
	"AgriCast/pkg/cache"
	pkgch "AgriCast/pkg/clickhouse"
	"AgriCast/pkg/config"
	xhttp "AgriCast/pkg/http"
	pkgkafka "AgriCast/pkg/kafka"
	applogger "AgriCast/pkg/logger"
	"AgriCast/pkg/metrics"
	pkgpg "AgriCast/pkg/postgres"
	"AgriCast/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DataSources groups the storage roles served by the configured source backend.
// Writer is nil when the backend is read-only.
type DataSources struct {
	Source  repository.SeriesSource
	Catalog repository.ProductCatalog
	Writer  repository.ObservationWriter
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvidePrometheusRegistry creates a registry with Go runtime and process collectors.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegisterer(reg)
}

// ProvidePostgresClient connects when Postgres backs the source or the prediction sink.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, func(), error) {
	if cfg.Source.Type != "postgres" && cfg.Predictions.Sink != "postgres" {
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgpg.NewClient(ctx,
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithPool(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
		pkgpg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pkgpg.WithConnectTimeout(cfg.Postgres.ConnectTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.PostgresSchema(cfg.Predictions.Table)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideClickHouseClient connects when ClickHouse backs the source.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Source.Type != "clickhouse" {
		return nil, func() {}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(clickHouseDatabase(cfg))); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func clickHouseDatabase(cfg *config.Config) string {
	if cfg.ClickHouse.Database != "" {
		return cfg.ClickHouse.Database
	}
	return "agricast"
}

// ProvideKafkaProducer creates the producer used by the Kafka prediction sink and the log collector.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	needed := cfg.Predictions.Sink == "kafka" || cfg.Logger.Collector.Enabled
	if !needed || len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
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
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Logger.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collector.Interval,
			CountThreshold: cfg.Logger.Collector.CountThreshold,
			Topic:          cfg.Logger.Collector.Topic,
			Service:        "agricast",
			Publisher:      producer,
		})
	}

	return producer, func() {
		l.RemoveCollector()
		_ = producer.Close()
	}, nil
}

// ProvideDataSources picks the series source, catalog and observation writer for source.type.
func ProvideDataSources(cfg *config.Config, l *applogger.Logger, pg *pkgpg.Client, ch *pkgch.Client) (*DataSources, error) {
	var ds DataSources
	switch cfg.Source.Type {
	case "postgres":
		repo := internalrepo.NewPostgresRepository(pg.Pool(), cfg.Predictions.Table)
		repo.SetLogger(l)
		ds = DataSources{Source: repo, Catalog: repo, Writer: repo}
	case "clickhouse":
		repo := internalrepo.NewClickHouseRepository(ch.DB(), clickHouseDatabase(cfg))
		repo.SetLogger(l)
		ds = DataSources{Source: repo, Catalog: repo, Writer: repo}
	case "supabase":
		src := internalrepo.NewSupabaseSource(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.Timeout, cfg.Predictions.Table)
		src.SetLogger(l)
		ds = DataSources{Source: src, Catalog: src}
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Source.Type)
	}

	if cfg.Source.RetryMax > 1 {
		ds.Source = internalrepo.NewRetryingSource(ds.Source, cfg.Source.RetryMax, cfg.Source.RetryBackoff, l)
	}
	return &ds, nil
}

// ProvidePredictionSink returns the configured sink, or nil when predictions are not persisted.
func ProvidePredictionSink(cfg *config.Config, l *applogger.Logger, pg *pkgpg.Client, producer *pkgkafka.Producer) (repository.PredictionSink, error) {
	switch cfg.Predictions.Sink {
	case "postgres":
		repo := internalrepo.NewPostgresRepository(pg.Pool(), cfg.Predictions.Table)
		repo.SetLogger(l)
		return repo, nil
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("predictions.sink kafka needs kafka.brokers")
		}
		return internalrepo.NewKafkaPredictionPublisher(producer, cfg.Kafka.PredictionTopic), nil
	case "supabase":
		src := internalrepo.NewSupabaseSource(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.Timeout, cfg.Predictions.Table)
		src.SetLogger(l)
		return src, nil
	default:
		return nil, nil
	}
}

// ProvideModelExporter returns a file exporter when export.dir is set.
func ProvideModelExporter(cfg *config.Config) repository.ModelExporter {
	if cfg.Export.Dir == "" {
		return nil
	}
	return internalrepo.NewFileExporter(cfg.Export.Dir)
}

// ProvideCache creates the product cache: in-memory, fronting Redis when enabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mem := cache.NewMemoryCache(cache.WithMemoryDefaultTTL(cfg.Products.CacheTTL))
		return mem, func() { _ = mem.Close() }, nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected", applogger.String("host", cfg.Redis.Host), applogger.Int("port", cfg.Redis.Port))
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Redis.LocalSize), cache.WithLayeredMemoryTTL(time.Minute))
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideTrainer creates the GBRT trainer from forecast hyperparameters.
func ProvideTrainer(cfg *config.Config) *model.Trainer {
	p := model.DefaultParams()
	if cfg.Forecast.Trees > 0 {
		p.NumTrees = cfg.Forecast.Trees
	}
	if cfg.Forecast.MaxDepth > 0 {
		p.MaxDepth = cfg.Forecast.MaxDepth
	}
	if cfg.Forecast.LearningRate > 0 {
		p.LearningRate = cfg.Forecast.LearningRate
	}
	if cfg.Forecast.Seed != 0 {
		p.Seed = cfg.Forecast.Seed
	}
	return model.NewTrainer(model.WithParams(p), model.WithMinRows(cfg.Forecast.MinTrainingRows))
}

// ProvideRegistry creates the model registry.
func ProvideRegistry(cfg *config.Config, trainer *model.Trainer, l *applogger.Logger, m repository.Metrics) (*registry.Registry, error) {
	opts := []registry.Option{
		registry.WithMaxAge(cfg.Registry.MaxAge),
		registry.WithRetrainAfterObservations(cfg.Registry.RetrainAfterObservations),
		registry.WithModelVersion(cfg.Forecast.ModelVersion),
		registry.WithLogger(l),
		registry.WithMetrics(m),
	}
	if cfg.Registry.MaxEntries > 0 {
		opts = append(opts, registry.WithMaxEntries(cfg.Registry.MaxEntries))
	}
	return registry.New(trainer, opts...)
}

// ProvideForecastUseCase wires the forecasting flow.
func ProvideForecastUseCase(
	cfg *config.Config,
	ds *DataSources,
	reg *registry.Registry,
	sink repository.PredictionSink,
	exporter repository.ModelExporter,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ForecastUseCase {
	opts := []usecase.ForecastOption{
		usecase.WithMaxHorizon(cfg.Forecast.MaxHorizon),
		usecase.WithForecastLogger(l),
	}
	if cfg.Forecast.PersistPredictions && sink != nil {
		opts = append(opts, usecase.WithSink(sink))
	}
	if exporter != nil {
		opts = append(opts, usecase.WithExporter(exporter))
	}
	return usecase.NewForecastUseCase(ds.Source, reg, forecast.New(), m, opts...)
}

// ProvideProductsUseCase creates the cached product listing.
func ProvideProductsUseCase(cfg *config.Config, ds *DataSources, c cache.Service) *usecase.ProductsUseCase {
	return usecase.NewProductsUseCase(ds.Catalog, c, cfg.Products.CacheTTL)
}

// ProvideIngestPipeline builds the store pipeline behind the ingest consumer; nil when it is disabled.
func ProvideIngestPipeline(
	cfg *config.Config,
	ds *DataSources,
	m repository.Metrics,
	reg *registry.Registry,
	products *usecase.ProductsUseCase,
	l *applogger.Logger,
) (*mid.IngestPipeline, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	if ds.Writer == nil {
		return nil, fmt.Errorf("source.type %q cannot store ingested prices", cfg.Source.Type)
	}
	return mid.NewIngestPipeline(ds.Writer, m,
		mid.WithBufferSize(cfg.Kafka.Consumer.BufferSize),
		mid.WithMaxRPS(cfg.Kafka.Consumer.StoreRPS, cfg.Kafka.Consumer.StoreBurst),
		mid.WithOnStored(usecase.ObservationNotifier(reg, products)),
		mid.WithPipelineLogger(l),
	), nil
}

// ProvideKafkaConsumer creates the market price consumer with its handler registered.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry, pipe *mid.IngestPipeline, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if pipe == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewPriceIngestHandler(cfg.Kafka.IngestTopic, pipe, m))
	consumer.WithConsumerHook(pkgkafka.LoggingHook{Logger: l, Slow: time.Second})
	return consumer, nil
}

// ProvideHTTPHandler creates the forecast API handler.
func ProvideHTTPHandler(cfg *config.Config, l *applogger.Logger, fc *usecase.ForecastUseCase, products *usecase.ProductsUseCase) xhttp.Handler {
	opts := []api.HandlerOption{api.WithRequestTimeout(cfg.Server.RequestTimeout)}
	if cfg.Server.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst, 10000)
		opts = append(opts, api.WithPredictMiddleware(limiter.Middleware()))
	}
	return api.NewForecastEchoHandler(l, fc, products, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	pipe *mid.IngestPipeline,
) *server.App {
	return server.New(cfg, l, reg, handler, consumer, pipe)
}
