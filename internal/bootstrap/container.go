package bootstrap

import (
	"context"
	"sync"

	chclient "riskgate/internal/adapters/clickhouse"
	"riskgate/internal/adapters/config"
	"riskgate/internal/adapters/kafka"
	pgclient "riskgate/internal/adapters/postgres"
	redisclient "riskgate/internal/adapters/redis"
	"riskgate/internal/api"
	"riskgate/internal/api/health"
	"riskgate/internal/consumers"
	"riskgate/internal/domain/account"
	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/limits"
	"riskgate/internal/domain/market"
	"riskgate/internal/domain/position"
	"riskgate/internal/domain/profile"
	"riskgate/internal/domain/risk"
	"riskgate/internal/engine"
	"riskgate/internal/events"
	"riskgate/internal/registry"
	chrepo "riskgate/internal/repository/clickhouse"
	"riskgate/internal/services/alerts"
	"riskgate/internal/services/dailylimits"
	"riskgate/internal/services/monitor"
	"riskgate/internal/services/profiles"
	"riskgate/internal/workers"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are listed in initialization order.
type Container struct {
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos    *Repositories
	Adapters *Adapters
	Services *Services

	Engine *engine.Engine

	Application *Application
	Background  *Background

	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the engine state stores
type Repositories struct {
	Profile profile.Repository
	Limit   limits.Repository
	Alert   alert.Repository
	Event   risk.Repository
}

// Adapters groups the external collaborators
type Adapters struct {
	Prices   market.PriceFeed
	Ledger   position.Ledger
	Accounts account.Store
	Dedup    alerts.Deduper
	Bookings dailylimits.BookingGuard

	// Optional, nil when disabled
	KafkaProducer *kafka.Producer
	Publisher     *events.Publisher
	TradeReader   *kafka.Consumer
	EventArchive  *chrepo.EventArchive
}

// Services groups the risk components the engine is built from
type Services struct {
	Registry *registry.Registry
	Profiles *profiles.Store
	Limits   *dailylimits.Tracker
	Alerts   *alerts.Manager
	Monitor  *monitor.Monitor
}

// Application groups the HTTP layer
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// Background groups workers and consumers
type Background struct {
	WorkerScheduler *workers.Scheduler
	TradeConsumer   *consumers.TradeClosedConsumer // nil when Kafka is disabled
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in order.
// Panics on any initialization error.
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts the HTTP server, workers and consumers
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Adapters.EventArchive != nil {
		c.Adapters.EventArchive.Start(c.Context)
	}

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	if c.Background.TradeConsumer != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.Background.TradeConsumer.Start(c.Context); err != nil {
				c.Log.Errorw("Trades consumer failed", "error", err)
			}
		}()
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel()
		}
	}()

	c.Log.Infow("All systems operational",
		"storage", c.Config.Storage.Driver,
		"kafka", c.Config.Kafka.Enabled,
		"clickhouse", c.Config.ClickHouse.Enabled,
	)
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")
	c.Lifecycle.Shutdown(c)
}
