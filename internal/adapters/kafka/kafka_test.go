package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func TestProducer_PublishJSON(t *testing.T) {
	writers := map[string]*fakeWriter{}
	p := newProducer(func(topic string) messageWriter {
		w := &fakeWriter{}
		writers[topic] = w
		return w
	}, logger.Nop())

	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, TopicRiskAlerts, "user-1", map[string]string{"alert_type": "operation_blocked"}))
	require.NoError(t, p.Publish(ctx, TopicRiskAlerts, "user-2", map[string]string{"alert_type": "audit_gap"}))

	require.Len(t, writers, 1, "one writer per topic")
	w := writers[TopicRiskAlerts]
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "user-1", string(w.msgs[0].Key))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &body))
	assert.Equal(t, "audit_gap", body["alert_type"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PublishError(t *testing.T) {
	p := newProducer(func(string) messageWriter {
		return &fakeWriter{err: errors.New("leader not available")}
	}, logger.Nop())

	err := p.Publish(context.Background(), TopicRiskEvents, "k", struct{}{})
	assert.Error(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	failures  int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unreachable")
	}
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
	}}
	c := newConsumer(reader, TopicTradeClosed, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, func(ctx context.Context, msg kafka.Message) error {
			mu.Lock()
			seen = append(seen, string(msg.Value))
			mu.Unlock()
			if string(msg.Value) == "b" {
				return errors.New("bad payload")
			}
			return nil
		})
	}()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int64{1, 2}, reader.commits())
}

func TestConsumer_BacksOffOnFetchErrors(t *testing.T) {
	reader := &fakeReader{failures: 2, queue: []kafka.Message{{Offset: 7}}}
	c := newConsumer(reader, TopicTradeClosed, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, func(ctx context.Context, msg kafka.Message) error { return nil })
	}()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
