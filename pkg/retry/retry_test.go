package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"riskgate/pkg/errors"
)

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	r := New(Config{Attempts: 3, InitialDelay: time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.ErrTransientStore
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnFinalError(t *testing.T) {
	r := New(Config{Attempts: 5, InitialDelay: time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.Wrap(errors.ErrNotFound, "alert")
	})

	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetrier_GivesUp(t *testing.T) {
	r := New(Config{Attempts: 2, InitialDelay: time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.ErrDependencyUnavailable
	})

	assert.ErrorIs(t, err, errors.ErrDependencyUnavailable)
	assert.Contains(t, err.Error(), "gave up after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestRetrier_Cancelled(t *testing.T) {
	r := New(Config{Attempts: 3, InitialDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	err := r.Do(ctx, func(ctx context.Context) error {
		cancel()
		return errors.ErrTransientStore
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay_Capped(t *testing.T) {
	r := New(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond})

	assert.Equal(t, 100*time.Millisecond, r.delay(0))
	assert.Equal(t, 200*time.Millisecond, r.delay(1))
	assert.Equal(t, 300*time.Millisecond, r.delay(2))

	fixed := New(Config{InitialDelay: 50 * time.Millisecond, Strategy: StrategyFixed})
	assert.Equal(t, 50*time.Millisecond, fixed.delay(4))
}
