package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/limits"
	"riskgate/internal/domain/profile"
	"riskgate/internal/domain/risk"
	"riskgate/pkg/errors"
)

func TestProfileRepository_Versions(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository()
	userID := uuid.New()

	_, err := repo.GetActive(ctx, userID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	v1 := profile.Default(userID, "medium", time.Now())
	require.NoError(t, repo.Save(ctx, &v1))

	trades := 2
	v2 := v1.Apply(profile.Patch{MaxConcurrentTrades: &trades}, time.Now())
	require.NoError(t, repo.Save(ctx, &v2))

	active, err := repo.GetActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	history, err := repo.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, profile.StatusSuperseded, history[1].Status)
}

func TestLimitRepository_IgnoresStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := NewLimitRepository()
	userID := uuid.New()

	newer := &limits.DynamicLimit{UserID: userID, LimitType: limits.LimitDailyLoss, CurrentValue: decimal.NewFromInt(30), Version: 5}
	older := &limits.DynamicLimit{UserID: userID, LimitType: limits.LimitDailyLoss, CurrentValue: decimal.NewFromInt(10), Version: 4}

	require.NoError(t, repo.Save(ctx, newer))
	require.NoError(t, repo.Save(ctx, older))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, decimal.NewFromInt(30).Equal(all[0].CurrentValue))
}

func TestAlertRepository_StatusAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewAlertRepository()
	userID := uuid.New()
	other := uuid.New()
	now := time.Now()

	a := &alert.RiskAlert{ID: uuid.New(), UserID: userID, Status: alert.StatusActive, CreatedAt: now}
	b := &alert.RiskAlert{ID: uuid.New(), UserID: other, Status: alert.StatusActive, CreatedAt: now}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	assert.ErrorIs(t, repo.Create(ctx, a), errors.ErrAlreadyExists)

	require.NoError(t, repo.UpdateStatus(ctx, a.ID, alert.StatusResolved, now))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), alert.StatusResolved, now), errors.ErrNotFound)

	active, err := repo.List(ctx, alert.Filter{Status: alert.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)

	mine, err := repo.List(ctx, alert.Filter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alert.StatusResolved, mine[0].Status)
	assert.NotNil(t, mine[0].ResolvedAt)
}

func TestEventRepository_ListSince(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository()
	userID := uuid.New()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, &risk.RiskEvent{ID: uuid.New(), UserID: userID, CreatedAt: base}))
	require.NoError(t, repo.Append(ctx, &risk.RiskEvent{ID: uuid.New(), UserID: userID, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, repo.Append(ctx, &risk.RiskEvent{ID: uuid.New(), UserID: uuid.New(), CreatedAt: base.Add(time.Hour)}))

	mine, err := repo.ListSince(ctx, &userID, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := repo.ListSince(ctx, nil, base)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
