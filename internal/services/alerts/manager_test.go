package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/internal/domain/alert"
	"riskgate/internal/repository/memory"
	"riskgate/internal/testsupport"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

type failingDeduper struct{}

func (failingDeduper) Claim(ctx context.Context, key string, id uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error) {
	return uuid.Nil, false, errors.New("redis down")
}

func (failingDeduper) Release(ctx context.Context, key string) error { return nil }

type fixture struct {
	manager *Manager
	repo    *memory.AlertRepository
	sink    *testsupport.Sink
	clock   *testsupport.Clock
}

func newFixture(t *testing.T, dedup func(now func() time.Time) Deduper) *fixture {
	t.Helper()
	clock := testsupport.NewClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	repo := memory.NewAlertRepository()
	sink := &testsupport.Sink{}
	m := NewManager(repo, sink, dedup(clock.Now),
		retry.New(retry.Config{Attempts: 2, InitialDelay: time.Millisecond}),
		Config{Cooldown: 5 * time.Minute},
		logger.Nop(),
	).WithClock(clock.Now)
	return &fixture{manager: m, repo: repo, sink: sink, clock: clock}
}

func memDedup(now func() time.Time) Deduper { return NewMemoryDeduper(now) }

func TestRaise_DeduplicatesWithinCooldown(t *testing.T) {
	f := newFixture(t, memDedup)
	ctx := context.Background()
	userID := uuid.New()

	first, err := f.manager.Raise(ctx, userID, alert.TypeDailyLossWarning, alert.SeverityMedium, "80% used", alert.Context{})
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	second, err := f.manager.Raise(ctx, userID, alert.TypeDailyLossWarning, alert.SeverityMedium, "85% used", alert.Context{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	active, err := f.manager.Active(ctx, &userID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Len(t, f.sink.Delivered(), 1)

	f.clock.Advance(2 * time.Minute)
	third, err := f.manager.Raise(ctx, userID, alert.TypeDailyLossWarning, alert.SeverityMedium, "90% used", alert.Context{})
	require.NoError(t, err)
	assert.NotEqual(t, first, third, "cool-down expired")
}

func TestRaise_DifferentSymbolsAreDistinct(t *testing.T) {
	f := newFixture(t, memDedup)
	ctx := context.Background()
	userID := uuid.New()

	a, _ := f.manager.Raise(ctx, userID, alert.TypeTakeProfitSuggestion, alert.SeverityMedium, "tp", alert.Context{Symbol: "BTC"})
	b, _ := f.manager.Raise(ctx, userID, alert.TypeTakeProfitSuggestion, alert.SeverityMedium, "tp", alert.Context{Symbol: "ETH"})
	assert.NotEqual(t, a, b)
}

func TestRaise_StoresContext(t *testing.T) {
	f := newFixture(t, memDedup)
	ctx := context.Background()
	userID := uuid.New()

	id, err := f.manager.Raise(ctx, userID, alert.TypeStopLossTriggered, alert.SeverityCritical, "stop", alert.Context{
		Symbol:         "SYM",
		CurrentValue:   decimal.RequireFromString("-0.021"),
		ThresholdValue: decimal.RequireFromString("-0.02"),
	})
	require.NoError(t, err)

	stored, err := f.repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alert.SeverityCritical, stored.Severity)
	assert.Equal(t, "SYM", stored.Symbol)
	assert.True(t, decimal.RequireFromString("-0.021").Equal(stored.CurrentValue))
	assert.Equal(t, alert.StatusActive, stored.Status)
}

func TestRaise_RejectsUnknownSeverity(t *testing.T) {
	f := newFixture(t, memDedup)
	_, err := f.manager.Raise(context.Background(), uuid.New(), alert.TypeAuditGap, "urgent", "x", alert.Context{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRaise_DedupOutageStillRaises(t *testing.T) {
	f := newFixture(t, func(func() time.Time) Deduper { return failingDeduper{} })
	ctx := context.Background()
	userID := uuid.New()

	a, err := f.manager.Raise(ctx, userID, alert.TypeOperationBlocked, alert.SeverityHigh, "blocked", alert.Context{})
	require.NoError(t, err)
	b, err := f.manager.Raise(ctx, userID, alert.TypeOperationBlocked, alert.SeverityHigh, "blocked", alert.Context{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestResolve_ReopensCooldown(t *testing.T) {
	f := newFixture(t, memDedup)
	ctx := context.Background()
	userID := uuid.New()

	id, err := f.manager.Raise(ctx, userID, alert.TypeDailyLossWarning, alert.SeverityMedium, "x", alert.Context{})
	require.NoError(t, err)
	require.NoError(t, f.manager.Resolve(ctx, id))

	stored, err := f.repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alert.StatusResolved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)

	again, err := f.manager.Raise(ctx, userID, alert.TypeDailyLossWarning, alert.SeverityMedium, "x", alert.Context{})
	require.NoError(t, err)
	assert.NotEqual(t, id, again)

	assert.NoError(t, f.manager.Resolve(ctx, id), "resolving twice is a no-op")
}

func TestResolve_UnknownAlert(t *testing.T) {
	f := newFixture(t, memDedup)
	assert.ErrorIs(t, f.manager.Resolve(context.Background(), uuid.New()), errors.ErrNotFound)
	assert.ErrorIs(t, f.manager.Dismiss(context.Background(), uuid.New()), errors.ErrNotFound)
}

func TestResolveCondition(t *testing.T) {
	f := newFixture(t, memDedup)
	ctx := context.Background()
	userID := uuid.New()

	_, _ = f.manager.Raise(ctx, userID, alert.TypeTakeProfitSuggestion, alert.SeverityMedium, "tp", alert.Context{Symbol: "BTC"})
	_, _ = f.manager.Raise(ctx, userID, alert.TypeTakeProfitSuggestion, alert.SeverityMedium, "tp", alert.Context{Symbol: "ETH"})

	n, err := f.manager.ResolveCondition(ctx, userID, alert.TypeTakeProfitSuggestion, "btc")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, _ := f.manager.Active(ctx, &userID)
	require.Len(t, active, 1)
	assert.Equal(t, "ETH", active[0].Symbol)
}

func TestFanOut_RoutesBySeverity(t *testing.T) {
	ops := &testsupport.Sink{}
	users := &testsupport.Sink{}
	broken := &testsupport.Sink{Err: errors.New("telegram down")}

	f := NewFanOut(
		Route{Name: "users", Sink: users, MinSeverity: alert.SeverityMedium},
		Route{Name: "ops", Sink: ops, MinSeverity: alert.SeverityCritical},
		Route{Name: "broken", Sink: broken, MinSeverity: alert.SeverityCritical},
	)

	require.NoError(t, f.Deliver(context.Background(), alert.RiskAlert{Severity: alert.SeverityMedium}))
	err := f.Deliver(context.Background(), alert.RiskAlert{Severity: alert.SeverityCritical})
	assert.Error(t, err)

	assert.Len(t, users.Delivered(), 2)
	assert.Len(t, ops.Delivered(), 1)
}
