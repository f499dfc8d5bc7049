package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/alert"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ alert.Repository = (*AlertRepository)(nil)

const alertColumns = `id, user_id, alert_type, severity, message, symbol,
	current_value, threshold_value, status, created_at, resolved_at`

// AlertRepository implements alert.Repository using sqlx
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert
func (r *AlertRepository) Create(ctx context.Context, a *alert.RiskAlert) (err error) {
	defer func(start time.Time) { observe("alert_create", start, err) }(time.Now())

	query := `
		INSERT INTO risk_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.AlertType, a.Severity, a.Message, a.Symbol,
		a.CurrentValue, a.ThresholdValue, a.Status, a.CreatedAt, a.ResolvedAt,
	)
	return translate(err, "create risk alert")
}

// GetByID retrieves an alert
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (a *alert.RiskAlert, err error) {
	defer func(start time.Time) { observe("alert_get", start, err) }(time.Now())

	var out alert.RiskAlert
	query := `SELECT ` + alertColumns + ` FROM risk_alerts WHERE id = $1`
	if err = r.db.GetContext(ctx, &out, query, id); err != nil {
		return nil, translate(err, "get risk alert")
	}
	return &out, nil
}

// UpdateStatus closes an active alert. Closing an already closed alert is a no-op.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status alert.Status, at time.Time) (err error) {
	defer func(start time.Time) { observe("alert_update_status", start, err) }(time.Now())

	res, err := r.db.ExecContext(ctx, `
		UPDATE risk_alerts
		SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'active'`,
		id, status, at,
	)
	if err != nil {
		return translate(err, "update risk alert")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err = r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM risk_alerts WHERE id = $1)`, id); err != nil {
		return translate(err, "check risk alert")
	}
	if !exists {
		return errors.Wrapf(errors.ErrNotFound, "alert %s", id)
	}
	return nil
}

// List returns alerts matching the filter, newest first
func (r *AlertRepository) List(ctx context.Context, f alert.Filter) (out []*alert.RiskAlert, err error) {
	defer func(start time.Time) { observe("alert_list", start, err) }(time.Now())

	var (
		where []string
		args  []interface{}
	)
	if f.UserID != nil {
		args = append(args, *f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM risk_alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	if err = r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, translate(err, "list risk alerts")
	}
	return out, nil
}
