package clickhouse

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/internal/domain/risk"
	"riskgate/pkg/logger"
)

func TestEventArchive_BuffersAndFlushes(t *testing.T) {
	var (
		mu    sync.Mutex
		saved []archivedEvent
	)
	archive := newEventArchive(func(ctx context.Context, batch []archivedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, batch...)
		return nil
	}, logger.Nop())

	ctx := context.Background()
	ev := risk.RiskEvent{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		EventType:       risk.EventStopLossTriggered,
		Payload:         json.RawMessage(`{"symbol":"SYM"}`),
		RiskLevel:       risk.LevelCritical,
		AutoActionTaken: true,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, archive.Mirror(ctx, ev))
	assert.Equal(t, 1, archive.Pending())

	archive.Start(ctx)
	require.NoError(t, archive.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, saved, 1)
	assert.Equal(t, ev.ID.String(), saved[0].ID)
	assert.Equal(t, "stop_loss_triggered", saved[0].EventType)
	assert.Equal(t, uint8(1), saved[0].AutoActionTaken)
	assert.Equal(t, `{"symbol":"SYM"}`, saved[0].Payload)
}
