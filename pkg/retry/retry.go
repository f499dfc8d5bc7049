package retry

import (
	"context"
	"math"
	"time"

	"riskgate/pkg/errors"
)

// Strategy defines the retry strategy
type Strategy string

const (
	// StrategyExponential uses exponential backoff
	StrategyExponential Strategy = "exponential"
	// StrategyFixed uses a fixed delay
	StrategyFixed Strategy = "fixed"
)

// Config contains retry configuration.
// Attempts counts total tries, including the first one.
type Config struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsRetryable.
	Retryable func(error) bool
}

// DefaultConfig returns the bounded backoff used for store writes and close commands
func DefaultConfig() Config {
	return Config{
		Attempts:     3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Strategy:     StrategyExponential,
		Multiplier:   2.0,
	}
}

// Retrier runs functions with bounded retries
type Retrier struct {
	config Config
}

// New creates a retrier, filling unset fields with defaults
func New(config Config) *Retrier {
	def := DefaultConfig()
	if config.Attempts <= 0 {
		config.Attempts = def.Attempts
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.Strategy == "" {
		config.Strategy = def.Strategy
	}
	if config.Retryable == nil {
		config.Retryable = IsRetryable
	}
	return &Retrier{config: config}
}

// Attempts returns the configured attempt budget
func (r *Retrier) Attempts() int {
	return r.config.Attempts
}

// Do executes fn until it succeeds, returns a non-retryable error,
// or the attempt budget is exhausted.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.config.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.Retryable(err) {
			return err
		}

		if attempt == r.config.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(r.delay(attempt)):
		}
	}

	return errors.Wrapf(lastErr, "gave up after %d attempts", r.config.Attempts)
}

func (r *Retrier) delay(attempt int) time.Duration {
	var d time.Duration
	switch r.config.Strategy {
	case StrategyFixed:
		d = r.config.InitialDelay
	default:
		d = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt)))
	}
	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}
	return d
}

// IsRetryable treats transient store failures, timeouts and outages as retryable.
// Validation and not-found errors are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errors.ErrInvalidProfile) ||
		errors.Is(err, errors.ErrInvalidInput) ||
		errors.Is(err, errors.ErrNotFound) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
