package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinAgent/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type topicHandler struct {
	topic string
	calls int
	err   error
}

func (h *topicHandler) Topic() string { return h.topic }
func (h *topicHandler) Handle(context.Context, []byte) error {
	h.calls++
	return h.err
}

func TestProducerEncodesValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &memWriter{}
	p := &Producer{writer: w, metrics: newProducerMetrics(reg)}
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "decisions", []byte("BTCUSDT"), map[string]any{"signal": "buy"}))
	require.NoError(t, p.PublishMessage(ctx, "logs", "plain"))
	require.NoError(t, p.PublishBatch(ctx, "bars", []Message{{Value: []byte("a")}, {Value: []byte("b")}}))
	require.NoError(t, p.PublishBatch(ctx, "bars", nil))

	require.Len(t, w.msgs, 4)
	assert.JSONEq(t, `{"signal":"buy"}`, string(w.msgs[0].Value))
	assert.Equal(t, "BTCUSDT", string(w.msgs[0].Key))
	assert.Equal(t, "plain", string(w.msgs[1].Value))
	assert.Equal(t, "bars", w.msgs[3].Topic)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("bars", "ok")))
}

func TestProducerWriteError(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := &Producer{writer: &memWriter{err: errors.New("down")}, metrics: newProducerMetrics(reg)}

	err := p.Publish(context.Background(), "decisions", nil, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decisions")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errors.WithLabelValues("decisions")))

	_, err = encodeValue(func() {})
	assert.Error(t, err)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithProducerRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func newTestConsumer(t *testing.T, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRegistry(prometheus.NewRegistry()),
	}, opts...)
	c, err := NewConsumer(logger.Nop(), opts...)
	require.NoError(t, err)
	return c
}

func TestConsumerRetriesThenDLQ(t *testing.T) {
	c := newTestConsumer(t, WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond))
	dlq := &memWriter{}
	c.dlq = dlq
	c.cfg.DLQTopic = "bars.dlq"

	var failures int
	c.WithConsumerHook(HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { failures++ }})

	h := &topicHandler{topic: "bars", err: errors.New("bad bar")}
	c.RegisterHandler(h)
	c.handle(&message{topic: "bars", km: kafka.Message{Topic: "bars", Key: []byte("ETHUSDT"), Value: []byte("{}")}})

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, 1, failures)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "bars.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, "ETHUSDT", string(dlq.msgs[0].Key))
	assert.Equal(t, "bars", string(dlq.msgs[0].Headers[0].Value))
}

func TestConsumerSkipIsNotRetried(t *testing.T) {
	c := newTestConsumer(t, WithConsumerRetry(5, time.Millisecond, time.Millisecond))
	h := &topicHandler{topic: "bars", err: ErrSkip}
	c.RegisterHandler(h)
	c.handle(&message{topic: "bars", km: kafka.Message{Value: []byte("x")}})
	assert.Equal(t, 1, h.calls)
}

func TestConsumerBeforeHookRejects(t *testing.T) {
	c := newTestConsumer(t, WithConsumerRetry(0, time.Millisecond, time.Millisecond))
	c.WithConsumerHook(HookFuncs{Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
		return ctx, km, data, errors.New("rejected")
	}})
	h := &topicHandler{topic: "bars"}
	c.RegisterHandler(h)
	c.handle(&message{topic: "bars"})
	assert.Equal(t, 0, h.calls)
}

func TestConsumerRecoversPanic(t *testing.T) {
	c := newTestConsumer(t)
	c.RegisterHandler(panicHandler{})
	assert.NotPanics(t, func() {
		c.handle(&message{topic: "boom"})
	})
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "boom" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestStartWithoutHandlers(t *testing.T) {
	c := newTestConsumer(t)
	assert.Error(t, c.Start())
}
