package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"riskgate/internal/domain/risk"
	"riskgate/internal/metrics"
	chbatch "riskgate/pkg/clickhouse"
	"riskgate/pkg/logger"
)

// Compile-time check
var _ risk.Mirror = (*EventArchive)(nil)

// archivedEvent is one row of risk_events_archive
type archivedEvent struct {
	ID              string
	UserID          string
	EventType       string
	Payload         string
	RiskLevel       string
	AutoActionTaken uint8
	CreatedAt       time.Time
}

// EventArchive copies risk events into ClickHouse for long-range analytics.
// Rows are buffered and written in batches.
type EventArchive struct {
	writer *chbatch.BatchWriter[archivedEvent]
}

// NewEventArchive creates an archive writing through conn
func NewEventArchive(conn driver.Conn, log *logger.Logger) *EventArchive {
	return newEventArchive(func(ctx context.Context, batch []archivedEvent) error {
		return insertEvents(ctx, conn, batch)
	}, log)
}

func newEventArchive(flush chbatch.FlushFunc[archivedEvent], log *logger.Logger) *EventArchive {
	return &EventArchive{
		writer: chbatch.NewBatchWriter(chbatch.BatchWriterConfig[archivedEvent]{
			FlushFunc:    flush,
			TableName:    "risk_events_archive",
			MaxBatchSize: 200,
			MaxAge:       5 * time.Second,
			Log:          log,
		}),
	}
}

// Start runs the periodic flush loop
func (a *EventArchive) Start(ctx context.Context) {
	a.writer.Start(ctx)
}

// Stop flushes buffered rows
func (a *EventArchive) Stop(ctx context.Context) error {
	return a.writer.Stop(ctx)
}

// Mirror buffers an event. A failed batch insert is retried on the next flush.
func (a *EventArchive) Mirror(ctx context.Context, e risk.RiskEvent) error {
	var auto uint8
	if e.AutoActionTaken {
		auto = 1
	}
	return a.writer.Add(ctx, archivedEvent{
		ID:              e.ID.String(),
		UserID:          e.UserID.String(),
		EventType:       string(e.EventType),
		Payload:         string(e.Payload),
		RiskLevel:       string(e.RiskLevel),
		AutoActionTaken: auto,
		CreatedAt:       e.CreatedAt,
	})
}

// Pending returns how many rows wait for the next flush
func (a *EventArchive) Pending() int {
	return a.writer.BufferSize()
}

func insertEvents(ctx context.Context, conn driver.Conn, rows []archivedEvent) (err error) {
	defer func(start time.Time) {
		metrics.RecordDBQuery("clickhouse", "event_archive_insert", time.Since(start), err)
	}(time.Now())

	batch, err := conn.PrepareBatch(ctx, `
		INSERT INTO risk_events_archive (
			id, user_id, event_type, payload, risk_level, auto_action_taken, created_at
		)`)
	if err != nil {
		return err
	}

	for _, r := range rows {
		if err = batch.Append(r.ID, r.UserID, r.EventType, r.Payload, r.RiskLevel, r.AutoActionTaken, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}
