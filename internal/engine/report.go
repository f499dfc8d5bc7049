package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/risk"
	"riskgate/internal/registry"
	"riskgate/pkg/errors"
)

// Report window bounds in hours. MaxReportWindow is one year.
const (
	DefaultReportWindow = 24
	MaxReportWindow     = 24 * 366
)

// Report aggregates alerts and events over a window
type Report struct {
	UserID           *uuid.UUID     `json:"user_id,omitempty"`
	WindowHours      int            `json:"window_hours"`
	From             time.Time      `json:"from"`
	To               time.Time      `json:"to"`
	AlertsByType     map[string]int `json:"alerts_by_type"`
	AlertsBySeverity map[string]int `json:"alerts_by_severity"`
	EventsByType     map[string]int `json:"events_by_type"`
	Metrics          ReportMetrics  `json:"metrics"`
}

// ReportMetrics are the headline numbers of a report
type ReportMetrics struct {
	BlockedOperations   int   `json:"blocked_operations"`
	StopLossesTriggered int   `json:"stop_losses_triggered"`
	AutoActions         int   `json:"auto_actions"`
	ActiveAlerts        int   `json:"active_alerts"`
	CriticalAlerts      int   `json:"critical_alerts"`
	MonitoredUsers      int   `json:"monitored_users"`
	MonitoredPositions  int   `json:"monitored_positions"`
	EvaluationsTotal    int64 `json:"evaluations_since_start"`
}

// GetRiskReport summarises the last windowHours, for one user or everyone
func (e *Engine) GetRiskReport(ctx context.Context, userID *uuid.UUID, windowHours int) (*Report, error) {
	if windowHours < 0 || windowHours > MaxReportWindow {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "window_hours must be between 0 and %d, got %d", MaxReportWindow, windowHours)
	}
	if windowHours == 0 {
		windowHours = DefaultReportWindow
	}

	to := e.now().UTC()
	from := to.Add(-time.Duration(windowHours) * time.Hour)

	alertsInWindow, err := e.alerts.Since(ctx, userID, from)
	if err != nil {
		return nil, errors.Wrap(err, "list alerts")
	}
	events, err := e.events.Since(ctx, userID, from)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}

	r := &Report{
		UserID:           userID,
		WindowHours:      windowHours,
		From:             from,
		To:               to,
		AlertsByType:     make(map[string]int),
		AlertsBySeverity: make(map[string]int),
		EventsByType:     make(map[string]int),
	}

	for _, a := range alertsInWindow {
		r.AlertsByType[string(a.AlertType)]++
		r.AlertsBySeverity[string(a.Severity)]++
		if a.IsActive() {
			r.Metrics.ActiveAlerts++
		}
		if a.Severity == alert.SeverityCritical {
			r.Metrics.CriticalAlerts++
		}
	}

	for _, ev := range events {
		r.EventsByType[string(ev.EventType)]++
		switch ev.EventType {
		case risk.EventOperationBlocked:
			r.Metrics.BlockedOperations++
		case risk.EventStopLossTriggered, risk.EventHardStopTriggered:
			r.Metrics.StopLossesTriggered++
		}
		if ev.AutoActionTaken {
			r.Metrics.AutoActions++
		}
	}

	if userID != nil {
		e.registry.View(*userID, func(u registry.User) {
			r.Metrics.MonitoredUsers = 1
			r.Metrics.MonitoredPositions = len(u.Positions)
			r.Metrics.EvaluationsTotal = u.Evaluations
		})
	} else {
		t := e.registry.Totals()
		r.Metrics.MonitoredUsers = t.Users
		r.Metrics.MonitoredPositions = t.Positions
		r.Metrics.EvaluationsTotal = t.Evaluations
	}
	return r, nil
}
