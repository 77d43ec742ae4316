package di

import (
	"context"
	"fmt"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/internal/domain/service"
	"FxPulse/internal/handler/api"
	internalrepo "FxPulse/internal/repository"
	"FxPulse/internal/service/channels"
	"FxPulse/internal/service/dispatch"
	"FxPulse/internal/service/gateway"
	"FxPulse/internal/service/ratelimit"
	"FxPulse/internal/service/risk"
	"FxPulse/internal/service/session"
	"FxPulse/internal/service/tracker"
	"FxPulse/internal/usecase"
	"FxPulse/pkg/cache"
	pkgch "FxPulse/pkg/clickhouse"
	"FxPulse/pkg/config"
	xhttp "FxPulse/pkg/http"
	pkgkafka "FxPulse/pkg/kafka"
	"FxPulse/pkg/logger"
	"FxPulse/pkg/metrics"
	"FxPulse/pkg/queue"
	"FxPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const backendRedis = "redis"

// ProvideRedis connects to Redis when the redis backend is selected. It
// returns nil for the memory backend.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if cfg.Storage.Backend != backendRedis {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideLogger builds the root logger. With log.collect and Redis available,
// error logs are aggregated and flushed to the log queue.
func ProvideLogger(cfg *config.Config, rc *cache.RedisCache) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if !cfg.Log.Collect || rc == nil {
		return l, func() {}, nil
	}
	// Derived before the collector is attached so publisher errors are not re-collected.
	plog := l.With(logger.String("component", "log_publisher"))
	pub, err := queue.NewRedisPublisher(plog, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":logs"))
	if err != nil {
		return nil, nil, fmt.Errorf("log publisher: %w", err)
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:    cfg.Log.FlushInterval,
		CountThreshold:  cfg.Log.FlushSize,
		Topic:           cfg.Log.Queue,
		Publisher:       pub,
		CollectWarnings: cfg.Log.Warnings,
		OnError: func(err error) {
			plog.Warn("publish collected logs", logger.Error(err))
		},
	})
	cleanup := func() {
		l.RemoveCollector()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pub.Stop(ctx)
	}
	return l, cleanup, nil
}

// ProvideRegistry creates the Prometheus registry every component reports to.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pkgkafka.SetProducerMetricsRegisterer(reg)
	pkgkafka.SetConsumerMetricsRegisterer(reg)
	return reg
}

// ProvideMetrics creates the pipeline metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideClickHouse connects and initializes the audit schema when enabled.
func ProvideClickHouse(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithAuth(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideSignalStateStore selects the signal state backend.
func ProvideSignalStateStore(cfg *config.Config, rc *cache.RedisCache) repository.SignalStateStore {
	if rc != nil {
		return internalrepo.NewRedisSignalStateStore(rc.Client(), cfg.Redis.Prefix)
	}
	return internalrepo.NewMemorySignalStateStore()
}

// ProvideNotificationStore selects the recent-history backend and adds the
// ClickHouse audit copy when enabled.
func ProvideNotificationStore(cfg *config.Config, rc *cache.RedisCache, ch *pkgch.Client, l *logger.Logger) repository.NotificationStore {
	var store repository.NotificationStore
	if rc != nil {
		store = internalrepo.NewRedisNotificationStore(rc.Client(), cfg.Redis.Prefix, cfg.Storage.RecentRetention)
	} else {
		store = internalrepo.NewMemoryNotificationStore(cfg.Storage.RecentRetention)
	}
	if ch == nil {
		return store
	}
	audit := internalrepo.NewClickHouseAudit(ch.DB(), cfg.ClickHouse.Database)
	return internalrepo.NewAuditedNotificationStore(store, audit, l.With(logger.String("component", "notification_store")))
}

// ProvideSnapshotStore keeps position history in ClickHouse, or in memory without it.
func ProvideSnapshotStore(cfg *config.Config, ch *pkgch.Client) repository.SnapshotStore {
	if ch != nil {
		return internalrepo.NewClickHouseAudit(ch.DB(), cfg.ClickHouse.Database)
	}
	return internalrepo.NewMemorySnapshotStore(500)
}

// ProvideEventPublisher publishes cycle reports and deliveries to Kafka when enabled.
func ProvideEventPublisher(cfg *config.Config) (repository.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopEventPublisher{}, func() {}, nil
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
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.ReportsTopic, cfg.Kafka.NotificationsTopic)
	return pub, func() { _ = pub.Close() }, nil
}

// ProvideAccounts creates the account service client.
func ProvideAccounts(cfg *config.Config) *internalrepo.AccountsClient {
	return internalrepo.NewAccountsClient(cfg.Accounts.BaseURL,
		internalrepo.WithAccountsToken(cfg.Accounts.Token),
		internalrepo.WithAccountsTimeout(cfg.Accounts.Timeout),
	)
}

// ProvideGateway builds the market and prediction gateway. Quotes are cached
// in memory, backed by Redis when available.
func ProvideGateway(cfg *config.Config, rc *cache.RedisCache, m repository.Metrics, l *logger.Logger) *gateway.Gateway {
	var quotes cache.Service = cache.NewMemoryCache(cache.WithMemoryMaxSize(1000))
	if rc != nil {
		quotes = cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(1000))
	}
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Gateway.Timeout))
	return gateway.New(
		gateway.NewMarketClient(cfg.Gateway.MarketURL, client),
		gateway.NewPredictionClient(cfg.Gateway.PredictionURL, client),
		gateway.WithCache(quotes, cfg.Gateway.CacheTTL),
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithCandles(cfg.Gateway.Candles),
		gateway.WithRateLimit(ratelimit.New(), cfg.Gateway.RateLimit.Capacity, cfg.Gateway.RateLimit.RefillPerSecond),
		gateway.WithFallback(cfg.Gateway.Fallback),
		gateway.WithMetrics(m),
		gateway.WithLogger(l.With(logger.String("component", "gateway"))),
	)
}

// ProvideTracker creates the signal state tracker.
func ProvideTracker(store repository.SignalStateStore) *tracker.Tracker {
	return tracker.New(store)
}

// ProvideEvaluator creates the position risk evaluator.
func ProvideEvaluator(cfg *config.Config) *risk.Evaluator {
	return risk.New(
		risk.WithReversalThreshold(cfg.Risk.ReversalThreshold),
		risk.WithTargetProgress(cfg.Risk.TargetProgress),
	)
}

// ProvideSessionRegistry creates the in-app session table.
func ProvideSessionRegistry(cfg *config.Config, m repository.Metrics, l *logger.Logger) *session.Registry {
	return session.NewRegistry(
		session.WithIdleTimeout(cfg.Channels.InApp.IdleTimeout),
		session.WithMetrics(m),
		session.WithLogger(l.With(logger.String("component", "sessions"))),
	)
}

// ProvideTokens resolves websocket session tokens from Redis, or from an
// in-process cache for local runs.
func ProvideTokens(cfg *config.Config, rc *cache.RedisCache) *session.Tokens {
	if rc != nil {
		return session.NewTokens(rc, cfg.Channels.InApp.TokenPrefix)
	}
	return session.NewTokens(cache.NewMemoryCache(), cfg.Channels.InApp.TokenPrefix)
}

// ProvideInbox creates the in-app inbox queue. Frames for offline subscribers
// are retried until a session appears. Nil without Redis or with in-app disabled.
func ProvideInbox(cfg *config.Config, rc *cache.RedisCache, registry *session.Registry, l *logger.Logger) *queue.RedisQueue {
	if rc == nil || !cfg.Channels.InApp.Enabled {
		return nil
	}
	in := cfg.Channels.InApp.Inbox
	q := queue.NewRedisQueue(l.With(logger.String("component", "inbox")), queue.QueueConfig{
		Workers:       in.Workers,
		RetryLimit:    in.RetryLimit,
		RetryDelay:    in.RetryDelay,
		MaxRetryDelay: in.MaxRetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.Prefix+":"+in.Queue))
	q.RegisterJob(channels.NewInboxJob(registry))
	return q
}

// ProvideChannelAdapters builds the enabled delivery channels.
func ProvideChannelAdapters(cfg *config.Config, registry *session.Registry, inbox *queue.RedisQueue) []service.ChannelAdapter {
	ch := cfg.Channels
	var adapters []service.ChannelAdapter
	if ch.Telegram.Enabled {
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Dispatch.ChannelTimeout))
		adapters = append(adapters, channels.NewTelegram(client, ch.Telegram.APIURL, ch.Telegram.BotToken))
	}
	if ch.Discord.Enabled {
		adapters = append(adapters, channels.NewDiscord(cfg.Dispatch.ChannelTimeout))
	}
	if ch.Email.Enabled {
		adapters = append(adapters, channels.NewEmail(ch.Email.Host, ch.Email.Port, ch.Email.Username, ch.Email.Password, ch.Email.From))
	}
	if ch.InApp.Enabled {
		adapters = append(adapters, channels.NewInApp(registry, inboxOrNil(inbox)))
	}
	return adapters
}

// inboxOrNil keeps a nil queue from becoming a non-nil channels.Inbox.
func inboxOrNil(q *queue.RedisQueue) channels.Inbox {
	if q == nil {
		return nil
	}
	return q
}

// ProvideDispatcher creates the notification dispatcher.
func ProvideDispatcher(
	cfg *config.Config,
	store repository.NotificationStore,
	adapters []service.ChannelAdapter,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *dispatch.Dispatcher {
	return dispatch.New(store, dispatch.PlainRenderer{}, adapters,
		dispatch.WithChannelTimeout(cfg.Dispatch.ChannelTimeout),
		dispatch.WithEvents(events),
		dispatch.WithMetrics(m),
		dispatch.WithLogger(l.With(logger.String("component", "dispatcher"))),
	)
}

// ProvideNotifier creates the per-subscriber notifier.
func ProvideNotifier(store repository.NotificationStore, d *dispatch.Dispatcher, m repository.Metrics, l *logger.Logger) *usecase.Notifier {
	return usecase.NewNotifier(store, d,
		usecase.WithNotifierMetrics(m),
		usecase.WithNotifierLogger(l.With(logger.String("component", "notifier"))),
	)
}

// ProvideScheduler assembles the cycle scheduler.
func ProvideScheduler(
	cfg *config.Config,
	gw *gateway.Gateway,
	tr *tracker.Tracker,
	ev *risk.Evaluator,
	notifier *usecase.Notifier,
	accounts *internalrepo.AccountsClient,
	snapshots repository.SnapshotStore,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
) (*usecase.Scheduler, error) {
	sc := cfg.Scheduler
	timeframes := make([]models.Timeframe, 0, len(sc.Timeframes))
	for _, tf := range sc.Timeframes {
		t := models.Timeframe(tf)
		if !models.IsValidTimeframe(t) {
			return nil, fmt.Errorf("scheduler: unsupported timeframe %q", tf)
		}
		timeframes = append(timeframes, t)
	}
	retry := usecase.RetryPolicy{Attempts: sc.UnitRetries, BackoffMin: sc.RetryBackoffMin, BackoffMax: sc.RetryBackoffMax}
	ulog := l.With(logger.String("component", "scheduler"))

	return usecase.NewScheduler(
		usecase.SchedulerConfig{
			Interval:   sc.Interval,
			Workers:    sc.Workers,
			Pairs:      sc.Pairs,
			Timeframes: timeframes,
		},
		usecase.NewSignalMonitor(gw, tr, retry, ulog),
		usecase.NewPositionMonitor(gw, ev, models.TF1h, retry, ulog),
		notifier,
		accounts,
		accounts,
		usecase.WithSnapshotStore(snapshots),
		usecase.WithSchedulerEvents(events),
		usecase.WithSchedulerMetrics(m),
		usecase.WithSchedulerLogger(ulog),
	), nil
}

// ProvideNotifications creates the history and acknowledgment service.
func ProvideNotifications(store repository.NotificationStore) *usecase.Notifications {
	return usecase.NewNotifications(store)
}

// ProvideAckConsumer creates the Kafka consumer for acknowledgment events. Nil when Kafka is disabled.
func ProvideAckConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerStartOffset(kc.StartOffset),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerBufferSize(kc.BufferSize),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TracingHook{Log: l.With(logger.String("component", "acks")), Slow: time.Second})
	return consumer, nil
}

// ProvideAckHandler handles acknowledgment events.
func ProvideAckHandler(cfg *config.Config, notes *usecase.Notifications, m repository.Metrics, l *logger.Logger) *usecase.AckHandler {
	return usecase.NewAckHandler(cfg.Kafka.AcksTopic, notes, m, l.With(logger.String("component", "acks")))
}

// ProvideOpsHandler creates the operational HTTP handler.
func ProvideOpsHandler(
	ctx context.Context,
	cfg *config.Config,
	scheduler *usecase.Scheduler,
	notes *usecase.Notifications,
	registry *session.Registry,
	tokens *session.Tokens,
	inbox *queue.RedisQueue,
	rc *cache.RedisCache,
	ch *pkgch.Client,
	l *logger.Logger,
) *api.OpsHandler {
	opts := []api.Option{api.WithBaseContext(ctx), api.WithLogger(l)}
	if cfg.Channels.InApp.Enabled {
		opts = append(opts, api.WithSessions(registry, tokens, cfg.Channels.InApp.PingInterval))
	}
	if inbox != nil {
		opts = append(opts, api.WithInbox(inbox))
	}
	if rc != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch.Health))
	}
	return api.NewOpsHandler(scheduler, notes, opts...)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.OpsHandler, reg *prometheus.Registry, l *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetrics(nil, ""))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp assembles the process lifecycle.
func ProvideApp(
	cfg *config.Config,
	scheduler *usecase.Scheduler,
	httpServer *xhttp.Server,
	registry *session.Registry,
	inbox *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	acks *usecase.AckHandler,
	l *logger.Logger,
) *server.App {
	opts := []server.Option{
		server.WithAutoStart(cfg.Scheduler.AutoStart),
		server.WithBackground(registry),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithLogger(l),
	}
	if inbox != nil {
		opts = append(opts, server.WithWorker("inbox", inbox))
	}
	if consumer != nil {
		opts = append(opts, server.WithKafkaConsumer(consumer, acks))
	}
	return server.New(scheduler, httpServer, opts...)
}
