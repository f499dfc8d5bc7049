package bootstrap

import (
	"context"
	"sync"
	"time"

	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{shutdownTimeout: 60 * time.Second}
}

// Shutdown stops components in order:
// no new requests, no new sweeps, consumers drained, buffered events
// flushed, producer closed, then the stores other steps depend on.
func (l *Lifecycle) Shutdown(c *Container) {
	log := c.Log
	ctx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()

	log.Info("[1/7] Stopping HTTP server...")
	if c.Application.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.Application.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	log.Info("[2/7] Stopping risk workers...")
	if c.Background.WorkerScheduler != nil {
		if err := c.Background.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		}
	}

	log.Info("[3/7] Stopping consumers...")
	c.Cancel()
	l.waitForGoroutines(c.WG, 10*time.Second, log)

	log.Info("[4/7] Flushing event archive...")
	if c.Adapters.EventArchive != nil {
		if err := c.Adapters.EventArchive.Stop(ctx); err != nil {
			log.Errorw("Event archive flush failed", "error", err, "pending", c.Adapters.EventArchive.Pending())
		}
	}

	log.Info("[5/7] Closing Kafka producer...")
	if c.Adapters.KafkaProducer != nil {
		if err := c.Adapters.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		}
	}

	log.Info("[6/7] Flushing error tracker...")
	l.flushErrorTracker(ctx, c.ErrorTracker, log)

	log.Info("[7/7] Closing database connections...")
	l.closeDatabases(c, log)

	log.Info("Graceful shutdown complete")
	_ = logger.Sync()
}

func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnw("Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}
	flushCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Warnw("Error tracker flush failed", "error", err)
	}
}

func (l *Lifecycle) closeDatabases(c *Container, log *logger.Logger) {
	var errs errors.MultiError

	if c.CH != nil {
		errs.Add(errors.Wrap(c.CH.Close(), "clickhouse"))
	}
	if c.Redis != nil {
		errs.Add(errors.Wrap(c.Redis.Close(), "redis"))
	}
	if c.PG != nil {
		errs.Add(errors.Wrap(c.PG.Close(), "postgres"))
	}

	if err := errs.ToError(); err != nil {
		log.Errorw("Database close errors", "error", err)
	}
}
