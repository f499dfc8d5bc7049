package alert

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Severity of an alert. Ordering matters: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparisons and filtering
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid checks if severity is known
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Reaction describes what downstream consumers are expected to do
func (s Severity) Reaction() string {
	switch s {
	case SeverityLow:
		return "log"
	case SeverityMedium:
		return "notify user"
	case SeverityHigh:
		return "block further operations of that class"
	case SeverityCritical:
		return "automatic protective action taken"
	}
	return ""
}

// Status of an alert
type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// Type of an alert
type Type string

const (
	TypeDailyLossWarning     Type = "daily_loss_warning"
	TypeDailyLossExhausted   Type = "daily_loss_exhausted"
	TypeOperationBlocked     Type = "operation_blocked"
	TypeStopLossTriggered    Type = "stop_loss_triggered"
	TypeHardStopTriggered    Type = "hard_stop_triggered"
	TypeStopLossCloseFailed  Type = "stop_loss_close_failed"
	TypeTakeProfitSuggestion Type = "take_profit_suggestion"
	TypeAuditGap             Type = "audit_gap"
)

// RiskAlert is a user-facing notification of a risk condition
type RiskAlert struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	AlertType      Type            `db:"alert_type" json:"alert_type"`
	Severity       Severity        `db:"severity" json:"severity"`
	Message        string          `db:"message" json:"message"`
	Symbol         string          `db:"symbol" json:"symbol,omitempty"`
	CurrentValue   decimal.Decimal `db:"current_value" json:"current_value"`
	ThresholdValue decimal.Decimal `db:"threshold_value" json:"threshold_value"`
	Status         Status          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Context carries the values an alert is raised with
type Context struct {
	Symbol         string
	CurrentValue   decimal.Decimal
	ThresholdValue decimal.Decimal
}

// DedupKey identifies repeats of the same condition: (user, type, symbol)
func DedupKey(userID uuid.UUID, t Type, symbol string) string {
	return strings.Join([]string{userID.String(), string(t), strings.ToUpper(symbol)}, ":")
}

// Key returns the dedup key of the alert
func (a *RiskAlert) Key() string {
	return DedupKey(a.UserID, a.AlertType, a.Symbol)
}

// IsActive reports whether the alert still needs attention
func (a *RiskAlert) IsActive() bool {
	return a.Status == StatusActive
}
