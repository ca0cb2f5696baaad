package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type flakyHandler struct {
	mu       sync.Mutex
	failures int
	calls    int
	seen     [][]byte
}

func (h *flakyHandler) Topic() string { return "deals" }

func (h *flakyHandler) Handle(_ context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.failures {
		return errors.New("store unavailable")
	}
	h.seen = append(h.seen, b)
	return nil
}

func newTestConsumer(t *testing.T, h MessageHandler, r *fakeReader, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	c.RegisterHandler(h)
	c.readers[h.Topic()] = r
	return c
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Topic: "deals", Value: []byte(`{"order":1}`)}}}
	h := &flakyHandler{failures: 1}
	c := newTestConsumer(t, h, r)
	c.startWorkers()

	require.Eventually(t, func() bool { return r.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, 2, h.calls)
	assert.Equal(t, [][]byte{[]byte(`{"order":1}`)}, h.seen)
}

func TestConsumerParksPoisonMessageOnDLQ(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Topic: "deals", Key: []byte("k"), Value: []byte(`bad`)}}}
	h := &flakyHandler{failures: 100}
	var failed []error
	var mu sync.Mutex
	c := newTestConsumer(t, h, r, WithConsumerDLQ("deals.dlq"))
	dlq := &fakeWriter{}
	c.dlq = dlq
	c.WithConsumerHook(HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) {
		mu.Lock()
		failed = append(failed, err)
		mu.Unlock()
	}})
	c.startWorkers()

	require.Eventually(t, func() bool { return r.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, 3, h.calls, "first try plus two retries")
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "deals.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("bad"), dlq.msgs[0].Value)
	assert.Len(t, failed, 1)
}

func TestConsumerWithoutDLQDoesNotCommitFailures(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Topic: "deals", Value: []byte(`bad`)}}}
	h := &flakyHandler{failures: 100}
	c := newTestConsumer(t, h, r)
	c.startWorkers()

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.calls == 3
	}, 2*time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	assert.Zero(t, r.commits())
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)
}

func TestProducerEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")

	require.NoError(t, p.Publish(context.Background(), "decisions", []byte("EURUSD"), map[string]int{"n": 1}))
	require.NoError(t, p.PublishBatch(context.Background(), "logs", []Message{{Value: "plain"}, {Value: []byte("raw")}}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "decisions", w.msgs[0].Topic)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, []byte("plain"), w.msgs[1].Value)
	assert.Equal(t, []byte("raw"), w.msgs[2].Value)

	w.err = errors.New("leader not available")
	assert.Error(t, p.Publish(context.Background(), "decisions", nil, "x"))
}
