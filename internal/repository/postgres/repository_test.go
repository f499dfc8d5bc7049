package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/limits"
	"riskgate/internal/domain/profile"
	"riskgate/internal/domain/risk"
	"riskgate/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var profileRowColumns = []string{
	"id", "user_id", "tier", "plan_tier",
	"max_daily_loss_fraction", "max_position_size_fraction", "max_concurrent_trades",
	"stop_loss_fraction", "take_profit_fraction", "max_drawdown_fraction",
	"risk_score", "status", "version", "created_at", "updated_at",
}

func TestProfileRepository_GetActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)
	userID := uuid.New()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(profileRowColumns).AddRow(
		uuid.New().String(), userID.String(), "medium", "medium",
		"0.05", "0.20", 5, "0.03", "0.06", "0.15", "18.8", "active", 1, now, now,
	)
	mock.ExpectQuery(`SELECT .+ FROM risk_profiles\s+WHERE user_id = \$1 AND status = 'active'`).
		WithArgs(userID).
		WillReturnRows(rows)

	p, err := repo.GetActive(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, profile.TierMedium, p.Tier)
	assert.Equal(t, 5, p.MaxConcurrentTrades)
	assert.True(t, p.StopLossFraction.Equal(decimal.RequireFromString("0.03")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_GetActiveNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM risk_profiles`).WillReturnRows(sqlmock.NewRows(profileRowColumns))

	_, err := repo.GetActive(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestProfileRepository_SaveSupersedesInTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)
	now := time.Now().UTC()
	p := profile.Default(uuid.New(), "basic", now)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE risk_profiles\s+SET status = 'superseded'`).
		WithArgs(p.UserID, p.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO risk_profiles`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(context.Background(), &p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_SaveRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProfileRepository(db)
	p := profile.Default(uuid.New(), "basic", time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE risk_profiles`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO risk_profiles`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Save(context.Background(), &p)
	assert.True(t, errors.Is(err, errors.ErrTransientStore))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitRepository_SaveIsVersionGuarded(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLimitRepository(db)
	now := time.Now().UTC()

	l := &limits.DynamicLimit{
		UserID:       uuid.New(),
		LimitType:    limits.LimitDailyLoss,
		CurrentValue: decimal.NewFromInt(10),
		LimitValue:   decimal.NewFromInt(50),
		ResetAt:      limits.NextReset(now),
		Version:      7,
		UpdatedAt:    now,
	}
	l.Recompute()

	mock.ExpectExec(`ON CONFLICT \(user_id, limit_type\) DO UPDATE SET .+ WHERE dynamic_limits.version < EXCLUDED.version`).
		WithArgs(l.UserID, l.LimitType, l.CurrentValue, l.LimitValue, l.UsagePercentage, l.ResetAt, l.Version, l.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Save(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAlertRepository(db)

	mock.ExpectExec(`INSERT INTO risk_alerts`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := repo.Create(context.Background(), &alert.RiskAlert{ID: uuid.New(), Status: alert.StatusActive})
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestAlertRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	at := time.Now().UTC()

	t.Run("active alert", func(t *testing.T) {
		db, mock := newMock(t)
		id := uuid.New()
		mock.ExpectExec(`UPDATE risk_alerts\s+SET status = \$2, resolved_at = \$3\s+WHERE id = \$1 AND status = 'active'`).
			WithArgs(id, alert.StatusResolved, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewAlertRepository(db).UpdateStatus(ctx, id, alert.StatusResolved, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already closed", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE risk_alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.NoError(t, NewAlertRepository(db).UpdateStatus(ctx, uuid.New(), alert.StatusDismissed, at))
	})

	t.Run("unknown", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE risk_alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := NewAlertRepository(db).UpdateStatus(ctx, uuid.New(), alert.StatusDismissed, at)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestAlertRepository_ListBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAlertRepository(db)
	userID := uuid.New()
	since := time.Now().Add(-time.Hour).UTC()

	cols := []string{"id", "user_id", "alert_type", "severity", "message", "symbol",
		"current_value", "threshold_value", "status", "created_at", "resolved_at"}
	mock.ExpectQuery(`FROM risk_alerts WHERE user_id = \$1 AND status = \$2 AND created_at >= \$3 ORDER BY created_at DESC`).
		WithArgs(userID, alert.StatusActive, since).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			uuid.New().String(), userID.String(), "operation_blocked", "high", "blocked", "",
			"0", "0", "active", since, nil,
		))

	out, err := repo.List(context.Background(), alert.Filter{UserID: &userID, Status: alert.StatusActive, Since: since})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, alert.TypeOperationBlocked, out[0].AlertType)
	assert.Nil(t, out[0].ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_AppendAndList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEventRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	ev := &risk.RiskEvent{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		EventType: risk.EventOperationBlocked,
		Payload:   []byte(`{"symbol":"SYM"}`),
		RiskLevel: risk.LevelHigh,
		CreatedAt: now,
	}
	mock.ExpectExec(`INSERT INTO risk_events`).
		WithArgs(ev.ID, ev.UserID, ev.EventType, []byte(ev.Payload), ev.RiskLevel, false, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Append(ctx, ev))

	mock.ExpectQuery(`FROM risk_events\s+WHERE created_at >= \$1\s+ORDER BY created_at ASC`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "event_type", "payload", "risk_level", "auto_action_taken", "created_at"}).
			AddRow(ev.ID.String(), ev.UserID.String(), "operation_blocked", []byte(`{"symbol":"SYM"}`), "high", false, now))

	out, err := repo.ListSince(ctx, nil, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, risk.EventOperationBlocked, out[0].EventType)
	assert.JSONEq(t, `{"symbol":"SYM"}`, string(out[0].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}
