package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/adapters/kafka"
	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/position"
	"riskgate/internal/domain/risk"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// Compile-time checks
var (
	_ alert.Sink  = (*Publisher)(nil)
	_ risk.Mirror = (*Publisher)(nil)
)

// producer is implemented by *kafka.Producer
type producer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Envelope wraps every message on the risk topics
type Envelope struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	Source     string      `json:"source"`
	Version    string      `json:"version"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

const source = "riskgate"

// Publisher streams alerts, audit events and close commands to Kafka.
// Messages are keyed by user id so each user's stream stays ordered.
type Publisher struct {
	producer producer
	log      *logger.Logger
	now      func() time.Time
}

// NewPublisher creates a new risk stream publisher
func NewPublisher(producer producer, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		log:      log.With("component", "risk_publisher"),
		now:      time.Now,
	}
}

// Deliver implements alert.Sink
func (p *Publisher) Deliver(ctx context.Context, a alert.RiskAlert) error {
	return p.publish(ctx, kafka.TopicRiskAlerts, "risk.alert."+string(a.AlertType), a.UserID, a)
}

// Mirror implements risk.Mirror
func (p *Publisher) Mirror(ctx context.Context, e risk.RiskEvent) error {
	return p.publish(ctx, kafka.TopicRiskEvents, "risk.event."+string(e.EventType), e.UserID, e)
}

// PublishCloseRequest asks the ledger to close a position
func (p *Publisher) PublishCloseRequest(ctx context.Context, req position.CloseRequest) error {
	return p.publish(ctx, kafka.TopicCloseRequests, "position.close_requested", req.UserID, req)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType string, userID uuid.UUID, data interface{}) error {
	env := Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		Source:     source,
		Version:    "1.0",
		OccurredAt: p.now().UTC(),
		Data:       data,
	}
	if err := p.producer.Publish(ctx, topic, userID.String(), env); err != nil {
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debugw("Risk message published", "topic", topic, "type", eventType, "user_id", userID)
	return nil
}
