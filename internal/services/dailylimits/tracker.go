package dailylimits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskgate/internal/domain/limits"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

type entry struct {
	mu    sync.Mutex
	limit limits.DynamicLimit

	// trades booked in the current period, cleared on reset
	booked map[uuid.UUID]struct{}
}

// BookingGuard remembers booked trades outside the process so a redelivered
// trade is not counted again after a restart. Book returns false when the
// trade was already booked.
type BookingGuard interface {
	Book(ctx context.Context, tradeID uuid.UUID, ttl time.Duration) (bool, error)
}

const bookingTTL = 48 * time.Hour

// Tracker owns the running daily counters. Memory is authoritative;
// every change is written through to the repository as a versioned snapshot.
type Tracker struct {
	repo    limits.Repository
	retrier *retry.Retrier
	log     *logger.Logger
	now     func() time.Time
	guard   BookingGuard

	mu      sync.Mutex // guards the entries map only
	entries map[limits.Key]*entry
}

// NewTracker creates a limit tracker
func NewTracker(repo limits.Repository, retrier *retry.Retrier, log *logger.Logger) *Tracker {
	return &Tracker{
		repo:    repo,
		retrier: retrier,
		log:     log.Named("daily_limits"),
		now:     time.Now,
		entries: make(map[limits.Key]*entry),
	}
}

// WithClock overrides the time source (tests)
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// WithBookingGuard makes trade bookings idempotent across restarts
func (t *Tracker) WithBookingGuard(g BookingGuard) *Tracker {
	t.guard = g
	return t
}

// Load restores counters from the repository at startup
func (t *Tracker) Load(ctx context.Context) error {
	stored, err := t.repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "load dynamic limits")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range stored {
		key := limits.Key{UserID: l.UserID, LimitType: l.LimitType}
		t.entries[key] = &entry{limit: *l}
	}
	t.log.Infow("Dynamic limits loaded", "count", len(stored))
	return nil
}

func (t *Tracker) entry(userID uuid.UUID, lt limits.LimitType) *entry {
	key := limits.Key{UserID: userID, LimitType: lt}

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		now := t.now().UTC()
		e = &entry{limit: limits.DynamicLimit{
			UserID:       userID,
			LimitType:    lt,
			CurrentValue: decimal.Zero,
			LimitValue:   decimal.Zero,
			ResetAt:      limits.NextReset(now),
			UpdatedAt:    now,
		}}
		e.limit.Recompute()
		t.entries[key] = e
	}
	return e
}

// rollLocked resets a due counter. Caller holds e.mu.
func (t *Tracker) rollLocked(e *entry, now time.Time) bool {
	if !e.limit.Due(now) {
		return false
	}
	e.limit.CurrentValue = decimal.Zero
	e.booked = nil
	e.limit.ResetAt = limits.NextReset(now)
	e.limit.Version++
	e.limit.UpdatedAt = now
	e.limit.Recompute()
	return true
}

// RecordLoss adds a realised loss (a positive amount) to the user's daily counter.
// Non-positive amounts change nothing: the counter only grows until the next reset.
func (t *Tracker) RecordLoss(ctx context.Context, userID uuid.UUID, loss decimal.Decimal) (limits.Usage, error) {
	if !loss.IsPositive() {
		return t.Usage(ctx, userID, limits.LimitDailyLoss), nil
	}
	e := t.entry(userID, limits.LimitDailyLoss)
	now := t.now().UTC()

	e.mu.Lock()
	t.rollLocked(e, now)
	e.limit.CurrentValue = e.limit.CurrentValue.Add(loss)
	e.limit.Version++
	e.limit.UpdatedAt = now
	e.limit.Recompute()
	snapshot := e.limit
	e.mu.Unlock()

	return snapshot.Usage(), t.persist(ctx, snapshot)
}

// RecordTradeLoss books the realised loss of a closed trade once per period.
// A redelivered trade, or one closed before the current period started, is
// not counted; the bool reports whether the loss was added.
func (t *Tracker) RecordTradeLoss(ctx context.Context, userID, tradeID uuid.UUID, closedAt time.Time, loss decimal.Decimal) (limits.Usage, bool, error) {
	if tradeID == uuid.Nil {
		u, err := t.RecordLoss(ctx, userID, loss)
		return u, loss.IsPositive(), err
	}
	if !loss.IsPositive() {
		return t.Usage(ctx, userID, limits.LimitDailyLoss), false, nil
	}
	e := t.entry(userID, limits.LimitDailyLoss)
	now := t.now().UTC()

	e.mu.Lock()
	t.rollLocked(e, now)
	periodStart := e.limit.ResetAt.AddDate(0, 0, -1)
	_, seen := e.booked[tradeID]
	stale := !closedAt.IsZero() && closedAt.Before(periodStart)
	if !seen && !stale {
		if e.booked == nil {
			e.booked = make(map[uuid.UUID]struct{})
		}
		e.booked[tradeID] = struct{}{}
	}
	snapshot := e.limit
	e.mu.Unlock()

	if seen || stale {
		t.log.Infow("Trade loss already booked or outside the period, skipped",
			"user_id", userID,
			"trade_id", tradeID,
			"closed_at", closedAt,
		)
		return snapshot.Usage(), false, nil
	}

	if t.guard != nil {
		first, err := t.guard.Book(ctx, tradeID, bookingTTL)
		switch {
		case err != nil:
			// counting twice is safer than not counting
			t.log.Warnw("Booking guard unavailable, loss counted", "trade_id", tradeID, "error", err)
		case !first:
			t.log.Infow("Trade loss booked before restart, skipped", "user_id", userID, "trade_id", tradeID)
			return t.Usage(ctx, userID, limits.LimitDailyLoss), false, nil
		}
	}

	e.mu.Lock()
	if e.booked == nil {
		// a reset sweep ran in between
		e.booked = make(map[uuid.UUID]struct{})
	}
	e.booked[tradeID] = struct{}{}
	e.limit.CurrentValue = e.limit.CurrentValue.Add(loss)
	e.limit.Version++
	e.limit.UpdatedAt = now
	e.limit.Recompute()
	snapshot = e.limit
	e.mu.Unlock()

	return snapshot.Usage(), true, t.persist(ctx, snapshot)
}

// SetLimit updates the cap. The counter is kept.
func (t *Tracker) SetLimit(ctx context.Context, userID uuid.UUID, lt limits.LimitType, value decimal.Decimal) (limits.Usage, error) {
	e := t.entry(userID, lt)
	now := t.now().UTC()

	e.mu.Lock()
	rolled := t.rollLocked(e, now)
	changed := !e.limit.LimitValue.Equal(value)
	if changed {
		e.limit.LimitValue = value
		e.limit.Version++
		e.limit.UpdatedAt = now
		e.limit.Recompute()
	}
	snapshot := e.limit
	e.mu.Unlock()

	if !changed && !rolled {
		return snapshot.Usage(), nil
	}
	return snapshot.Usage(), t.persist(ctx, snapshot)
}

// Usage returns the current view. A limit that was never set is fully used.
func (t *Tracker) Usage(ctx context.Context, userID uuid.UUID, lt limits.LimitType) limits.Usage {
	e := t.entry(userID, lt)
	now := t.now().UTC()

	e.mu.Lock()
	rolled := t.rollLocked(e, now)
	snapshot := e.limit
	e.mu.Unlock()

	if rolled {
		_ = t.persist(ctx, snapshot)
	}
	return snapshot.Usage()
}

// ResetDue zeroes every counter whose reset time has passed and
// returns the affected users.
func (t *Tracker) ResetDue(ctx context.Context) []uuid.UUID {
	now := t.now().UTC()

	t.mu.Lock()
	all := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	t.mu.Unlock()

	var reset []uuid.UUID
	for _, e := range all {
		e.mu.Lock()
		rolled := t.rollLocked(e, now)
		snapshot := e.limit
		e.mu.Unlock()

		if rolled {
			reset = append(reset, snapshot.UserID)
			_ = t.persist(ctx, snapshot)
		}
	}

	if len(reset) > 0 {
		t.log.Infow("Daily limits reset", "count", len(reset), "next_reset", limits.NextReset(now))
	}
	return reset
}

// Forget drops every counter of a user from memory
func (t *Tracker) Forget(userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.entries {
		if key.UserID == userID {
			delete(t.entries, key)
		}
	}
}

// persist writes a snapshot. Failures are logged, the in-memory state stands.
func (t *Tracker) persist(ctx context.Context, snapshot limits.DynamicLimit) error {
	err := t.retrier.Do(ctx, func(ctx context.Context) error {
		return t.repo.Save(ctx, &snapshot)
	})
	if err != nil {
		t.log.Errorw("Failed to persist dynamic limit",
			"user_id", snapshot.UserID,
			"limit_type", snapshot.LimitType,
			"version", snapshot.Version,
			"error", err,
		)
		return errors.Wrap(err, "persist dynamic limit")
	}
	return nil
}
