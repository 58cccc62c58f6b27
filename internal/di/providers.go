package di

import (
	"context"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	domrepo "comove/internal/domain/repository"
	"comove/internal/handler/api"
	"comove/internal/handler/ws"
	mid "comove/internal/middleware"
	internalrepo "comove/internal/repository"
	"comove/internal/service/ratelimit"
	"comove/internal/services/smoothing"
	"comove/internal/usecase"
	pkgcache "comove/pkg/cache"
	pkgch "comove/pkg/clickhouse"
	"comove/pkg/config"
	xhttp "comove/pkg/http"
	pkgkafka "comove/pkg/kafka"
	"comove/pkg/logger"
	"comove/pkg/metrics"
	"comove/pkg/queue"
	"comove/pkg/server"
	"comove/pkg/tracing"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideTracerProvider installs the global tracer provider. It is nil
// when tracing is disabled.
func ProvideTracerProvider(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	tp, _, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	return tp, err
}

// ProvideTracer names the use-case tracer.
func ProvideTracer(tp *sdktrace.TracerProvider) trace.Tracer {
	return tracing.Tracer(tp, "comove/usecase")
}

// ProvideTracingShutdown flushes spans on shutdown.
func ProvideTracingShutdown(tp *sdktrace.TracerProvider) tracing.Shutdown {
	return tracing.ShutdownFunc(tp)
}

// ProvideSmoothing converts the configured smoothing defaults.
func ProvideSmoothing(cfg *config.Config) smoothing.Params {
	s := cfg.Analysis.Smoothing
	p := smoothing.DefaultParams()
	if s.Method != "" {
		p.Method = smoothing.Method(s.Method)
	}
	if s.Window > 0 {
		p.Window = s.Window
	}
	if s.Alpha > 0 {
		p.Alpha = s.Alpha
	}
	if s.Iterations > 0 {
		p.Iterations = s.Iterations
	}
	if s.Span > 0 {
		p.Span = float64(s.Span)
	}
	if s.SavGolWindow > 0 {
		p.SavGolWindow = s.SavGolWindow
	}
	if s.SavGolOrder != nil {
		p.SavGolOrder = *s.SavGolOrder
	}
	return p
}

// ProvideClickHouseClient creates a ClickHouse client when ClickHouse is
// the series source.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Source.Type != "clickhouse" {
		return nil, nil
	}
	return NewClickHouseClient(cfg)
}

// NewClickHouseClient connects and, if configured, creates the bar tables.
func NewClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if !cfg.ClickHouse.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.BarsSchema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSeriesSource picks the ClickHouse store or the combined CSV files.
func ProvideSeriesSource(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) domrepo.SeriesSource {
	if ch != nil {
		return internalrepo.NewCHSeriesStore(ch, l)
	}
	return internalrepo.NewCSVStore(cfg.Source.CSVDir, cfg.Analysis.CacheTTL, l)
}

// ProvideRedisCache connects to Redis when enabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers memory over Redis, or uses memory alone.
func ProvideCache(cfg *config.Config, rc *pkgcache.RedisCache) pkgcache.Service {
	if rc != nil {
		return pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			pkgcache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
		)
	}
	return pkgcache.NewMemoryCache(
		pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
		pkgcache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
	)
}

// ProvideReportCache stores finished reports for GET /api/analysis/:id.
func ProvideReportCache(svc pkgcache.Service, cfg *config.Config) domrepo.ReportCache {
	return internalrepo.NewCachedReportStore(svc, cfg.Analysis.CacheTTL)
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
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
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideReportPipeline publishes reports to Kafka through the buffering
// pipeline, or discards them when Kafka is off.
func ProvideReportPipeline(cfg *config.Config, producer *pkgkafka.Producer, m domrepo.Metrics) *mid.ReportPipeline {
	var next domrepo.ReportPublisher = internalrepo.NopReportPublisher{}
	if producer != nil {
		next = internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportTopic)
	}
	return mid.NewReportPipeline(next, m,
		mid.WithMaxRPS(10),
		mid.WithBufferSize(256),
		mid.WithoutDistances(),
	)
}

// ProvideHub creates the report WebSocket hub.
func ProvideHub(l *logger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideAnalysisUseCase creates the analysis use case.
func ProvideAnalysisUseCase(
	cfg *config.Config,
	source domrepo.SeriesSource,
	cache domrepo.ReportCache,
	pipeline *mid.ReportPipeline,
	hub *ws.Hub,
	m domrepo.Metrics,
	l *logger.Logger,
	tracer trace.Tracer,
) *usecase.AnalysisUseCase {
	return usecase.NewAnalysisUseCase(source, cache, pipeline, hub, m, l,
		usecase.WithAnalysisTimeout(cfg.Analysis.Timeout),
		usecase.WithTracer(tracer),
	)
}

// ProvideQueue creates the Redis job queue when enabled.
func ProvideQueue(cfg *config.Config, rc *pkgcache.RedisCache, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
}

// ProvideKafkaConsumer creates a Kafka consumer for analysis requests.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
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
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRateLimiter creates the per-client limiter when enabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	m domrepo.Metrics,
	base smoothing.Params,
	uc *usecase.AnalysisUseCase,
	hub *ws.Hub,
	pipeline *mid.ReportPipeline,
	limiter *ratelimit.Limiter,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
	source domrepo.SeriesSource,
	svc pkgcache.Service,
	traceShutdown tracing.Shutdown,
) *server.App {
	var opts []api.HandlerOption
	if reader, ok := source.(domrepo.CandleReader); ok {
		opts = append(opts, api.WithCandles(usecase.NewCandlesUseCase(reader)))
	}
	c := server.Components{
		Hub:      hub,
		Limiter:  limiter,
		Pipeline: pipeline,
		Tracing:  traceShutdown,
		Checks:   readinessChecks(ch, rc),
	}

	if q != nil {
		opts = append(opts, api.WithQueue(q))
		c.Queue = q
		c.QueueJobs = []queue.Job{usecase.NewAnalysisJob(uc, base, m, l)}
	}
	if cfg.Analysis.Schedule > 0 {
		c.Schedule = usecase.NewScheduledAnalysis(uc, scheduledParams(cfg, base), cfg.Analysis.Schedule, l)
	}
	c.Handlers = []xhttp.Handler{api.NewAnalysisEchoHandler(l, uc, base, opts...)}

	if consumer != nil {
		c.Consumer = consumer
		c.KafkaHandlers = []pkgkafka.MessageHandler{
			usecase.NewKafkaAnalysisHandler(cfg.Kafka.RequestTopic, uc, base, m, l),
		}
	}

	// Repeated warnings and errors are batched onto the log topic.
	if producer != nil && cfg.Log.Collector.Enabled {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Kafka.LogTopic,
			Service:        cfg.Tracing.ServiceName,
			Publisher:      producer,
		})
		c.FlushLogs = l.RemoveCollector
	}

	if ch != nil {
		c.Closers = append(c.Closers, ch.Close)
	}
	c.Closers = append(c.Closers, svc.Close)
	return server.New(cfg, l, c)
}

func readinessChecks(ch *pkgch.Client, rc *pkgcache.RedisCache) map[string]xhttp.CheckFunc {
	checks := map[string]xhttp.CheckFunc{}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}
	}
	return checks
}

func scheduledParams(cfg *config.Config, base smoothing.Params) usecase.AnalysisParams {
	a := cfg.Analysis
	p := usecase.AnalysisParams{
		Primary:             a.Tickers.Primary,
		Comparisons:         append([]string(nil), a.Tickers.Comparisons...),
		Timeframe:           domrepo.NormalizeTimeframe(a.Timeframe),
		Field:               domrepo.NormalizeField(a.Field),
		Window:              a.Window,
		FreqBand:            append([]float64(nil), a.FreqBand...),
		MinStrength:         a.MinStrength,
		WeightedMinStrength: a.WeightedMinStrength,
		Smoothing:           base,
		NormalizeDTW:        a.NormalizeDTW,
	}
	if a.MaxWarp != nil {
		p.MaxWarp = *a.MaxWarp
	}
	return p
}
