package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/internal/domain/position"
	"riskgate/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

type recordingRequester struct {
	reqs []position.CloseRequest
}

func (r *recordingRequester) PublishCloseRequest(ctx context.Context, req position.CloseRequest) error {
	r.reqs = append(r.reqs, req)
	return nil
}

func TestLedger_OpenPositions(t *testing.T) {
	db, mock := newMock(t)
	userID := uuid.New()
	opened := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM positions\s+WHERE user_id = \$1 AND status = 'open'`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "symbol", "quantity", "entry_price", "current_pnl", "opened_at"}).
			AddRow(uuid.New().String(), userID.String(), "BTCUSDT", "-0.5", "64000", "12.5", opened))

	out, err := New(db, nil).OpenPositions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, position.SideShort, out[0].Side())
	assert.True(t, out[0].EntryPrice.Equal(decimal.NewFromInt(64000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_OpenPositionsOutage(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM positions`).WillReturnError(errors.New("too many connections"))

	_, err := New(db, nil).OpenPositions(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, errors.ErrDependencyUnavailable))
}

func TestLedger_ClosePositionViaTable(t *testing.T) {
	req := position.CloseRequest{
		PositionID:  uuid.New(),
		UserID:      uuid.New(),
		Symbol:      "SYM",
		Reason:      "stop_loss",
		RequestedAt: time.Now().UTC(),
	}

	t.Run("first request", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE positions\s+SET close_requested_at = \$3, close_reason = \$4`).
			WithArgs(req.PositionID, req.UserID, req.RequestedAt, req.Reason).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, New(db, nil).ClosePosition(context.Background(), req))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already requested", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE positions`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM positions`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))

		assert.NoError(t, New(db, nil).ClosePosition(context.Background(), req))
	})

	t.Run("unknown position", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE positions`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM positions`).WillReturnRows(sqlmock.NewRows([]string{"status"}))

		err := New(db, nil).ClosePosition(context.Background(), req)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestLedger_ClosePositionViaRequester(t *testing.T) {
	db, mock := newMock(t)
	requester := &recordingRequester{}

	req := position.CloseRequest{PositionID: uuid.New(), UserID: uuid.New()}
	require.NoError(t, New(db, requester).ClosePosition(context.Background(), req))

	assert.Equal(t, []position.CloseRequest{req}, requester.reqs)
	assert.NoError(t, mock.ExpectationsWereMet(), "no SQL when streaming")
}

func TestAccounts(t *testing.T) {
	db, mock := newMock(t)
	accounts := NewAccounts(db)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT balance FROM accounts`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("950.25"))
	mock.ExpectQuery(`SELECT peak_balance FROM accounts`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"peak_balance"}).AddRow("1000"))
	mock.ExpectQuery(`SELECT balance FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	ctx := context.Background()
	bal, err := accounts.Balance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("950.25")))

	peak, err := accounts.PeakBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, peak.Equal(decimal.NewFromInt(1000)))

	_, err = accounts.Balance(ctx, uuid.New())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
