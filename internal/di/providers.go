package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FinAgent/internal/domain/repository"
	"FinAgent/internal/handler/api"
	"FinAgent/internal/middleware"
	"FinAgent/internal/repository"
	"FinAgent/internal/service/binance"
	"FinAgent/internal/service/ratelimit"
	"FinAgent/internal/services/predictor"
	"FinAgent/internal/usecase"
	"FinAgent/pkg/cache"
	pkgch "FinAgent/pkg/clickhouse"
	"FinAgent/pkg/config"
	xhttp "FinAgent/pkg/http"
	pkgkafka "FinAgent/pkg/kafka"
	applogger "FinAgent/pkg/logger"
	"FinAgent/pkg/metrics"
	"FinAgent/pkg/queue"
	"FinAgent/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// Optional infrastructure (Redis, ClickHouse, Kafka, queue) is provided as a
// nil pointer when disabled in config. Consumers check for nil.

// Tooling is what the one-shot CLI commands need.
type Tooling struct {
	Agents  *usecase.AgentService
	Fetcher *usecase.Fetcher
	Logger  *applogger.Logger
}

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideRegistry() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

func ProvideMetrics(reg prometheus.Registerer) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideRedisCache connects to Redis when cache.redis.enabled is set.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Addr),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache returns a layered cache over Redis, a memory cache without
// Redis, or nil when caching is off.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, func()) {
	if !cfg.Cache.Enabled {
		return nil, func() {}
	}
	var c cache.Service
	if rc != nil {
		// shares the client; closing the layered cache leaves it open
		c = cache.NewLayeredCache(
			cache.NewRedisCacheFromClient(rc.Client(), cfg.Cache.Redis.Prefix),
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		)
	} else {
		c = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryDefaultTTL(cfg.Cache.TTL),
		)
	}
	return c, func() { _ = c.Close() }
}

func ProvideAgentStore(cfg *config.Config, c cache.Service, l *applogger.Logger) domrepo.AgentStore {
	files := repository.NewFileAgentStore(cfg.Models.Dir)
	if c == nil {
		return files
	}
	return repository.NewCachedAgentStore(files, c, cfg.Cache.TTL, l)
}

func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.BarsSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready",
		applogger.String("database", cfg.ClickHouse.Database),
		applogger.String("table", cfg.ClickHouse.Table))

	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

func ProvideBarStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) *repository.CHBarStore {
	if ch == nil {
		return nil
	}
	return repository.NewCHBarStore(ch, cfg.ClickHouse.Table, l)
}

func ProvideBinanceClient(cfg *config.Config) *binance.Client {
	return binance.NewClient(cfg.Data.BinanceURL, cfg.Data.APIKey, cfg.Data.Timeout)
}

func ProvideSourceResolver(cfg *config.Config, klines *binance.Client, bars *repository.CHBarStore) domrepo.BarSource {
	opts := []repository.ResolverOption{
		repository.WithKlines(klines),
		repository.WithDataDir(cfg.Data.Dir),
		repository.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Data.Timeout))),
	}
	if bars != nil {
		opts = append(opts, repository.WithBarStore(bars))
	}
	return repository.NewSourceResolver(opts...)
}

func ProvidePredictorFactory(cfg *config.Config) usecase.PredictorFactory {
	return usecase.NewPredictorFactory(predictor.Options{
		ServiceURL: cfg.Predictor.ServiceURL,
		Timeout:    cfg.Predictor.Timeout,
		Retries:    cfg.Predictor.Retries,
		RSIPeriod:  cfg.Predictor.RSIPeriod,
	})
}

func ProvideAgentService(
	cfg *config.Config,
	store domrepo.AgentStore,
	source domrepo.BarSource,
	predictors usecase.PredictorFactory,
	m domrepo.Metrics,
	l *applogger.Logger,
) (*usecase.AgentService, error) {
	return usecase.NewAgentService(store, source, predictors, m, l, usecase.AgentServiceConfig{
		WindowLength:     cfg.Engine.WindowLength,
		DefaultRiskLevel: cfg.Engine.DefaultRiskLevel,
		InitialBalance:   cfg.Engine.InitialBalance,
		DefaultBalance:   cfg.Engine.DefaultBalance,
		EvalSplit:        cfg.Engine.EvalSplit,
		EvalTimeout:      cfg.Engine.EvalTimeout,
		Seed:             cfg.Engine.Seed,
		SignalPolicy:     cfg.Engine.SignalPolicy,
	})
}

func ProvideFetcher(source domrepo.BarSource, bars *repository.CHBarStore, l *applogger.Logger) *usecase.Fetcher {
	var archive usecase.BarArchiver
	if bars != nil {
		archive = bars
	}
	return usecase.NewFetcher(source, repository.NewBarFiles(), archive, l)
}

func ProvideTooling(svc *usecase.AgentService, f *usecase.Fetcher, l *applogger.Logger) *Tooling {
	return &Tooling{Agents: svc, Fetcher: f, Logger: l}
}

// ProvideKafkaProducer connects the producer when kafka.enabled is set and
// ships aggregated warn and error logs to the logs topic.
func ProvideKafkaProducer(cfg *config.Config, reg prometheus.Registerer, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(3),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegistry(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: 30 * time.Second,
			Topic:        cfg.Kafka.LogsTopic,
			Publisher:    producer,
		})
	}
	return producer, func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

// ProvideDecisionPublisher publishes to Kafka when a producer exists and to
// the log otherwise. The producer cleanup owns closing.
func ProvideDecisionPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) domrepo.DecisionPublisher {
	if producer == nil {
		return repository.NewLogDecisionPublisher(l)
	}
	return repository.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic)
}

func queueOptions(cfg *config.Config) []queue.RedisQueueOption {
	return []queue.RedisQueueOption{queue.WithKeyPrefix(cfg.Queue.KeyPrefix + ":queue")}
}

// ProvideTrainPublisher is the enqueue side of asynchronous training.
func ProvideTrainPublisher(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisPublisher(l, rc.Client(), queueOptions(cfg)...)
}

func ProvideTrainEnqueuer(q *queue.RedisQueue) *usecase.TrainEnqueuer {
	if q == nil {
		return nil
	}
	return usecase.NewTrainEnqueuer(q)
}

// ProvideTrainWorker consumes training jobs.
func ProvideTrainWorker(cfg *config.Config, rc *cache.RedisCache, svc *usecase.AgentService, l *applogger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Queue.Enabled || rc == nil {
		return nil, fmt.Errorf("worker needs queue.enabled and cache.redis.enabled")
	}
	return queue.NewRedisConsumer(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), []queue.Job{usecase.NewTrainJob(svc, l)}, queueOptions(cfg)...), nil
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
}

func ProvideAgentsHandler(l *applogger.Logger, svc *usecase.AgentService, jobs *usecase.TrainEnqueuer, limiter *ratelimit.Limiter) *api.AgentsHandler {
	return api.NewAgentsHandler(l, svc, jobs, limiter)
}

func ProvideHTTPServer(cfg *config.Config, h *api.AgentsHandler, reg prometheus.Registerer, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, l,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithRegistry(reg, prometheus.DefaultGatherer),
	)
}

// ProvideServeApp runs the API. The train publisher starts first so async
// training is accepted as soon as the server listens.
func ProvideServeApp(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, q *queue.RedisQueue, producer *pkgkafka.Producer) *server.App {
	components := []server.Component{}
	if q != nil {
		components = append(components, q)
	}
	components = append(components, srv)
	logShipping(cfg, l, producer)
	return server.New("serve", l, components, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))
}

func ProvideWorkerApp(cfg *config.Config, l *applogger.Logger, worker *queue.RedisQueue, producer *pkgkafka.Producer) *server.App {
	logShipping(cfg, l, producer)
	return server.New("worker", l, []server.Component{worker}, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))
}

func logShipping(cfg *config.Config, l *applogger.Logger, producer *pkgkafka.Producer) {
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.Info("shipping aggregated logs", applogger.String("topic", cfg.Kafka.LogsTopic))
	}
}

// ProvideBarsConsumer is the Kafka side of live mode, nil for other sources.
func ProvideBarsConsumer(cfg *config.Config, reg prometheus.Registerer, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Live.Source != "kafka" {
		return nil, nil
	}
	c, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerStartAtLatest(),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerRetry(3, 100*time.Millisecond, 2*time.Second),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.BarsTopic+".dlq"),
		pkgkafka.WithConsumerRegistry(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	c.WithConsumerHook(pkgkafka.LoggingHook(l))
	return c, nil
}

// ProvideLiveApp executes one trained agent on closed bars from Binance or
// from the Kafka bars topic.
func ProvideLiveApp(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.AgentService,
	source domrepo.BarSource,
	publisher domrepo.DecisionPublisher,
	m domrepo.Metrics,
	consumer *pkgkafka.Consumer,
) (*server.App, error) {
	if cfg.Live.AgentID == "" {
		return nil, fmt.Errorf("live.agent_id is required")
	}
	if len(cfg.Live.Symbols) == 0 {
		return nil, fmt.Errorf("live.symbols is required")
	}

	runner := usecase.NewLiveRunner(svc, cfg.Live.AgentID, cfg.Live.Balance, publisher, m, l)
	gate := middleware.NewBarGate(runner, m, middleware.WithSymbols(cfg.Live.Symbols))

	opts := []usecase.LiveOption{}
	if cfg.Live.Warmup != "" {
		opts = append(opts, usecase.WithWarmup(source, cfg.Live.Warmup))
	}
	components := []server.Component{}
	if consumer == nil {
		stream := binance.NewStream(cfg.Data.BinanceWSURL, cfg.Live.Symbols, cfg.Live.Interval,
			binance.WithStreamLogger(l))
		opts = append(opts, usecase.WithLiveStream(stream))
	}
	components = append(components, usecase.NewLiveService(runner, gate, cfg.Live.Symbols, l, opts...))
	if consumer != nil {
		consumer.RegisterHandler(usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, gate, m))
		components = append(components, consumer)
	}

	l.Info("live configured",
		applogger.String("agent_id", cfg.Live.AgentID),
		applogger.Strings("symbols", cfg.Live.Symbols),
		applogger.String("interval", cfg.Live.Interval),
		applogger.String("source", cfg.Live.Source))
	return server.New("live", l, components, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout)), nil
}

