package clickhouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/pkg/logger"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	fail    bool
}

func (r *recorder) flush(ctx context.Context, batch []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("clickhouse down")
	}
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestBatchWriter_FlushOnMaxSize(t *testing.T) {
	rec := &recorder{}
	bw := NewBatchWriter(BatchWriterConfig[string]{
		FlushFunc:    rec.flush,
		TableName:    "risk_events",
		MaxBatchSize: 3,
		MaxAge:       10 * time.Second,
		Log:          logger.Nop(),
	})

	ctx := context.Background()
	require.NoError(t, bw.Add(ctx, "a"))
	require.NoError(t, bw.Add(ctx, "b"))
	assert.Equal(t, 0, rec.count())

	require.NoError(t, bw.Add(ctx, "c"))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []string{"a", "b", "c"}, rec.batches[0])
	assert.Equal(t, 0, bw.BufferSize())
}

func TestBatchWriter_FlushOnTimer(t *testing.T) {
	rec := &recorder{}
	bw := NewBatchWriter(BatchWriterConfig[string]{
		FlushFunc:    rec.flush,
		TableName:    "risk_events",
		MaxBatchSize: 100,
		MaxAge:       20 * time.Millisecond,
		Log:          logger.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bw.Start(ctx)

	require.NoError(t, bw.Add(ctx, "a"))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bw.Stop(context.Background()))
}

func TestBatchWriter_FailedFlushKeepsRows(t *testing.T) {
	rec := &recorder{fail: true}
	bw := NewBatchWriter(BatchWriterConfig[string]{
		FlushFunc:     rec.flush,
		TableName:     "risk_events",
		MaxBatchSize:  2,
		MaxBufferSize: 3,
		Log:           logger.Nop(),
	})

	ctx := context.Background()
	require.NoError(t, bw.Add(ctx, "a"))
	require.Error(t, bw.Add(ctx, "b"))
	assert.Equal(t, 2, bw.BufferSize())

	require.Error(t, bw.Add(ctx, "c"))
	require.Error(t, bw.Add(ctx, "d"))
	assert.Equal(t, 3, bw.BufferSize(), "buffer is capped")
	assert.Equal(t, int64(1), bw.Dropped())

	rec.mu.Lock()
	rec.fail = false
	rec.mu.Unlock()

	require.NoError(t, bw.Flush(ctx))
	assert.Equal(t, []string{"b", "c", "d"}, rec.batches[0])
}

func TestBatchWriter_StopWithoutStart(t *testing.T) {
	bw := NewBatchWriter(BatchWriterConfig[string]{
		FlushFunc: (&recorder{}).flush,
		Log:       logger.Nop(),
	})
	assert.NoError(t, bw.Stop(context.Background()))
}
