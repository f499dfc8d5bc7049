package risk

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Level is the risk level attached to decisions and events
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// EventType defines types of risk events
type EventType string

const (
	EventOperationBlocked    EventType = "operation_blocked"
	EventStopLossTriggered   EventType = "stop_loss_triggered"
	EventHardStopTriggered   EventType = "hard_stop_triggered"
	EventStopLossCloseFailed EventType = "stop_loss_close_failed"
	EventProfileUpdated      EventType = "profile_updated"
)

// Valid checks if risk event type is valid
func (e EventType) Valid() bool {
	switch e {
	case EventOperationBlocked, EventStopLossTriggered, EventHardStopTriggered,
		EventStopLossCloseFailed, EventProfileUpdated:
		return true
	}
	return false
}

// String returns string representation
func (e EventType) String() string {
	return string(e)
}

// RiskEvent is an immutable audit record of a block or an automatic action
type RiskEvent struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	EventType       EventType       `db:"event_type" json:"event_type"`
	Payload         json.RawMessage `db:"payload" json:"payload"`
	RiskLevel       Level           `db:"risk_level" json:"risk_level"`
	AutoActionTaken bool            `db:"auto_action_taken" json:"auto_action_taken"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
