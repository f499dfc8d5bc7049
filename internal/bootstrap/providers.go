package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	chclient "riskgate/internal/adapters/clickhouse"
	"riskgate/internal/adapters/config"
	"riskgate/internal/adapters/errors/noop"
	"riskgate/internal/adapters/errors/sentry"
	"riskgate/internal/adapters/kafka"
	"riskgate/internal/adapters/ledger"
	pgclient "riskgate/internal/adapters/postgres"
	redisclient "riskgate/internal/adapters/redis"
	"riskgate/internal/adapters/telegram"
	"riskgate/internal/api"
	"riskgate/internal/api/handlers"
	"riskgate/internal/api/health"
	"riskgate/internal/api/middleware"
	"riskgate/internal/consumers"
	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/risk"
	"riskgate/internal/engine"
	"riskgate/internal/events"
	"riskgate/internal/metrics"
	"riskgate/internal/registry"
	chrepo "riskgate/internal/repository/clickhouse"
	"riskgate/internal/repository/memory"
	pgrepo "riskgate/internal/repository/postgres"
	"riskgate/internal/services/admission"
	"riskgate/internal/services/alerts"
	"riskgate/internal/services/dailylimits"
	"riskgate/internal/services/eventlog"
	"riskgate/internal/services/exposure"
	"riskgate/internal/services/monitor"
	"riskgate/internal/services/profiles"
	"riskgate/internal/workers"
	riskworkers "riskgate/internal/workers/risk"
	"riskgate/pkg/auth"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

// MustInitConfig loads configuration, logging and error tracking
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.ErrorTracker = provideErrorTracker(cfg, logger.Get())
	logger.SetErrorTracker(c.ErrorTracker)

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	metrics.Init()
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// MustInitInfrastructure connects to the data stores.
// Postgres and Redis are required; ClickHouse is optional.
func (c *Container) MustInitInfrastructure() {
	var err error

	c.PG, err = pgclient.NewClient(c.Context, c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	c.Log.Infow("PostgreSQL connected", "host", c.Config.Postgres.Host, "db", c.Config.Postgres.Database)

	c.Redis, err = redisclient.NewClient(c.Context, c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("Failed to connect to Redis: %v", err)
	}
	c.Log.Infow("Redis connected", "addr", c.Config.Redis.Addr())

	if c.Config.ClickHouse.Enabled {
		c.CH, err = chclient.NewClient(c.Context, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		c.Log.Infow("ClickHouse connected", "host", c.Config.ClickHouse.Host)
	}
}

// MustInitRepositories selects the engine state store
func (c *Container) MustInitRepositories() {
	switch c.Config.Storage.Driver {
	case "postgres":
		db := c.PG.DB()
		c.Repos.Profile = pgrepo.NewProfileRepository(db)
		c.Repos.Limit = pgrepo.NewLimitRepository(db)
		c.Repos.Alert = pgrepo.NewAlertRepository(db)
		c.Repos.Event = pgrepo.NewEventRepository(db)
	default:
		c.Repos.Profile = memory.NewProfileRepository()
		c.Repos.Limit = memory.NewLimitRepository()
		c.Repos.Alert = memory.NewAlertRepository()
		c.Repos.Event = memory.NewEventRepository()
	}
	c.Log.Infow("Repositories initialized", "driver", c.Config.Storage.Driver)
}

// MustInitAdapters wires the price feed, ledger, accounts, dedup and streaming
func (c *Container) MustInitAdapters() {
	rdb := c.Redis.Client()
	c.Adapters.Prices = redisclient.NewPriceFeed(rdb, c.Config.Risk.PriceMaxAge)
	c.Adapters.Dedup = redisclient.NewAlertDeduper(rdb)
	c.Adapters.Bookings = redisclient.NewBookingGuard(rdb)
	c.Adapters.Accounts = ledger.NewAccounts(c.PG.DB())

	var requester ledger.CloseRequester
	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{Brokers: c.Config.Kafka.Brokers}, c.Log)
		c.Adapters.Publisher = events.NewPublisher(c.Adapters.KafkaProducer, c.Log)
		c.Adapters.TradeReader = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: c.Config.Kafka.Brokers,
			GroupID: c.Config.Kafka.GroupID,
			Topic:   kafka.TopicTradeClosed,
		}, c.Log)
		requester = c.Adapters.Publisher
	}
	c.Adapters.Ledger = ledger.New(c.PG.DB(), requester)

	if c.CH != nil {
		c.Adapters.EventArchive = chrepo.NewEventArchive(c.CH.Conn(), c.Log)
	}
	c.Log.Infow("Adapters initialized", "close_via_kafka", requester != nil)
}

// MustInitServices builds the risk components and the engine facade
func (c *Container) MustInitServices() {
	rc := c.Config.Risk
	storeRetrier := retry.New(retry.Config{Attempts: rc.StoreRetries})
	closeRetrier := retry.New(retry.Config{Attempts: rc.CloseRetries})

	reg := registry.New(rc.RegistryShards)
	c.Services.Registry = reg

	c.Services.Profiles = profiles.NewStore(c.Repos.Profile, storeRetrier, c.Log)
	c.Services.Limits = dailylimits.NewTracker(c.Repos.Limit, storeRetrier, c.Log).WithBookingGuard(c.Adapters.Bookings)
	if err := c.Services.Limits.Load(c.Context); err != nil {
		c.Log.Fatalf("Failed to load daily limits: %v", err)
	}

	c.Services.Alerts = alerts.NewManager(c.Repos.Alert, c.provideAlertSink(), c.Adapters.Dedup, storeRetrier, alerts.Config{
		Cooldown:        rc.AlertCooldown,
		DeliveryTimeout: rc.NotificationDeliveryWait,
	}, c.Log)

	var mirrors []risk.Mirror
	if c.Adapters.Publisher != nil {
		mirrors = append(mirrors, c.Adapters.Publisher)
	}
	if c.Adapters.EventArchive != nil {
		mirrors = append(mirrors, c.Adapters.EventArchive)
	}
	eventLog := eventlog.New(c.Repos.Event, c.Services.Alerts, storeRetrier, c.Log, mirrors...)

	gate := admission.NewGate(admission.Deps{
		Profiles: c.Services.Profiles,
		Limits:   c.Services.Limits,
		Exposure: exposure.NewCalculator(c.Adapters.Prices, c.Adapters.Ledger, c.Adapters.Accounts, rc.PriceTimeout),
		Ledger:   c.Adapters.Ledger,
		Accounts: c.Adapters.Accounts,
		Prices:   c.Adapters.Prices,
		Alerts:   c.Services.Alerts,
		Events:   eventLog,
		Registry: reg,
	}, admission.Config{
		VolatilityCeiling:       decimal.NewFromFloat(rc.VolatilityCeiling),
		CapitalReserve:          decimal.NewFromFloat(rc.CapitalReserve),
		ExposureReduceThreshold: decimal.NewFromFloat(rc.ExposureReduceThreshold),
		DailyLossWarnThreshold:  decimal.NewFromFloat(rc.DailyLossWarnThreshold),
		DependencyTimeout:       rc.PriceTimeout,
	}, c.Log)

	c.Services.Monitor = monitor.New(monitor.Deps{
		Registry: reg,
		Ledger:   c.Adapters.Ledger,
		Prices:   c.Adapters.Prices,
		Profiles: c.Services.Profiles,
		Alerts:   c.Services.Alerts,
		Events:   eventLog,
		Closer:   closeRetrier,
	}, monitor.Config{
		HardStopFloor:     decimal.NewFromFloat(rc.HardStopFloor),
		DependencyTimeout: rc.PriceTimeout,
		Concurrency:       rc.MonitorConcurrency,
	}, c.Log)

	c.Engine = engine.New(engine.Deps{
		Registry: reg,
		Profiles: c.Services.Profiles,
		Limits:   c.Services.Limits,
		Gate:     gate,
		Monitor:  c.Services.Monitor,
		Alerts:   c.Services.Alerts,
		Events:   eventLog,
	}, c.Log)

	prometheus.MustRegister(metrics.NewRegistryCollector(reg, c.PG.DB()))
	c.Log.Info("Risk engine initialized")
}

// provideAlertSink fans alerts out to Kafka and the ops Telegram chats.
// Nil when neither is configured.
func (c *Container) provideAlertSink() alert.Sink {
	var routes []alerts.Route

	if c.Adapters.Publisher != nil {
		routes = append(routes, alerts.Route{Name: "kafka", Sink: c.Adapters.Publisher, MinSeverity: alert.SeverityLow})
	}

	tc := c.Config.Telegram
	if tc.BotToken != "" && len(tc.OpsChatIDs) > 0 {
		tgCfg := telegram.Config{Token: tc.BotToken, ChatIDs: tc.OpsChatIDs, RatePerSec: tc.RatePerSec}
		bot, err := telegram.NewBotAPI(tgCfg)
		if err != nil {
			c.Log.Warnw("Telegram alerts disabled", "error", err)
		} else {
			routes = append(routes, alerts.Route{
				Name:        "telegram",
				Sink:        telegram.NewNotifier(bot, tgCfg, c.Log),
				MinSeverity: alert.SeverityHigh,
			})
		}
	}

	if len(routes) == 0 {
		c.Log.Warn("No alert sinks configured, alerts are only stored")
		return nil
	}
	return alerts.NewFanOut(routes...)
}

// MustInitApplication builds the HTTP server
func (c *Container) MustInitApplication() {
	h := health.New(c.Log, c.Config.App.Name, c.Config.App.Version).
		Require("postgres", c.PG.Health).
		Require("redis", c.Redis.Health)
	if c.CH != nil {
		h.Optional("clickhouse", c.CH.Health)
	}
	c.Application.HealthHandler = h

	var verifier middleware.TokenVerifier
	if c.Config.HTTP.AuthSecret != "" {
		verifier = auth.NewTokenService(c.Config.HTTP.AuthSecret, c.Config.HTTP.AuthIssuer, 0)
	} else {
		c.Log.Warn("API_AUTH_SECRET is empty, the risk API is unauthenticated")
	}

	router := api.NewRouter(handlers.NewRiskHandler(c.Engine, c.Log), h, verifier, c.Log)
	c.Application.HTTPServer = api.NewServer(api.ServerConfig{Port: c.Config.HTTP.Port}, router, c.Log)
}

// MustInitBackground registers the periodic risk workers and the trades consumer
func (c *Container) MustInitBackground() {
	wc := c.Config.Workers
	scheduler := workers.NewScheduler(c.Log)

	scheduler.RegisterWorker(riskworkers.NewGeneralSweepWorker(c.Services.Monitor, wc.GeneralSweepInterval, c.Log))
	scheduler.RegisterWorker(riskworkers.NewStopLossSweepWorker(c.Services.Monitor, wc.StopLossSweepInterval, c.Log))
	scheduler.RegisterWorker(riskworkers.NewLimitRefreshWorker(
		c.Services.Registry,
		c.Services.Profiles,
		c.Adapters.Accounts,
		c.Services.Limits,
		c.Services.Alerts,
		decimal.NewFromFloat(c.Config.Risk.DailyLossWarnThreshold),
		wc.LimitRefreshInterval,
		c.Log,
	))
	scheduler.RegisterWorker(riskworkers.NewLimitResetWorker(c.Services.Limits, c.Services.Alerts, wc.ResetSweepInterval, c.Log))

	c.Background.WorkerScheduler = scheduler
	c.Application.HealthHandler.WithWorkers(scheduler)

	if c.Adapters.TradeReader != nil {
		c.Background.TradeConsumer = consumers.NewTradeClosedConsumer(c.Adapters.TradeReader, c.Engine, c.Log)
	}
}
