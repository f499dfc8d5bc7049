package consumers

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"

	"riskgate/internal/adapters/kafka"
	"riskgate/internal/engine"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// messageSource is implemented by *kafka.Consumer
type messageSource interface {
	Consume(ctx context.Context, handler kafka.MessageHandler) error
	Close() error
}

// TradeRecorder is implemented by *engine.Engine
type TradeRecorder interface {
	RecordTradeClosed(ctx context.Context, t engine.TradeClosed) error
}

// tradeClosedMessage accepts both the enveloped and the bare form
type tradeClosedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TradeClosedConsumer books realised losses from the trades.closed topic
type TradeClosedConsumer struct {
	source   messageSource
	recorder TradeRecorder
	log      *logger.Logger
}

// NewTradeClosedConsumer creates a new trades.closed consumer
func NewTradeClosedConsumer(source messageSource, recorder TradeRecorder, log *logger.Logger) *TradeClosedConsumer {
	return &TradeClosedConsumer{
		source:   source,
		recorder: recorder,
		log:      log.With("component", "trade_closed_consumer"),
	}
}

// Start consumes until ctx is cancelled, then closes the reader
func (c *TradeClosedConsumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.source.Close(); err != nil {
			c.log.Errorw("Failed to close trades consumer", "error", err)
		}
	}()

	c.log.Infow("Subscribed to closed trades", "topic", kafka.TopicTradeClosed)
	err := c.source.Consume(ctx, c.handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *TradeClosedConsumer) handle(ctx context.Context, msg kafkago.Message) error {
	trade, err := decodeTradeClosed(msg.Value)
	if err != nil {
		return err
	}

	c.log.Debugw("Processing closed trade",
		"user_id", trade.UserID,
		"position_id", trade.PositionID,
		"symbol", trade.Symbol,
		"realized_pnl", trade.RealizedPnL,
	)
	return c.recorder.RecordTradeClosed(ctx, trade)
}

func decodeTradeClosed(value []byte) (engine.TradeClosed, error) {
	var trade engine.TradeClosed

	var env tradeClosedMessage
	if err := json.Unmarshal(value, &env); err != nil {
		return trade, errors.Wrapf(errors.ErrInvalidInput, "decode trade closed: %v", err)
	}

	payload := value
	if len(env.Data) > 0 {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, &trade); err != nil {
		return trade, errors.Wrapf(errors.ErrInvalidInput, "decode trade closed: %v", err)
	}
	return trade, nil
}
