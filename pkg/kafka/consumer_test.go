package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int
	calls    int
	traceIDs []string
}

func (h *flakyHandler) Topic() string { return "comove.requests" }

func (h *flakyHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	h.traceIDs = append(h.traceIDs, TraceIDFrom(ctx))
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func testConsumer(retryMax int) *Consumer {
	c := newConsumer(&ConsumerConfig{RetryMax: retryMax, BufferSize: 1, WorkerCount: 1})
	c.sleep = func(time.Duration) bool { return true }
	return c
}

func TestHandleWithRetrySucceeds(t *testing.T) {
	c := testConsumer(3)
	h := &flakyHandler{failures: 2}
	attempts, err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	c := testConsumer(1)
	h := &flakyHandler{failures: 5}
	attempts, err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestHandleOnceRecoversPanicAndRunsHooks(t *testing.T) {
	c := testConsumer(0)
	c.WithConsumerHook(TraceHook())
	h := &flakyHandler{}
	msg := kafka.Message{Topic: h.Topic(), Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("abc")}}}
	require.NoError(t, c.handleOnce(h, msg))
	assert.Equal(t, []string{"abc"}, h.traceIDs)

	err := c.handleOnce(panicHandler{}, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
}

func TestBeforeHookErrorSkipsHandler(t *testing.T) {
	c := testConsumer(0)
	c.WithConsumerHook(HookFuncs{
		Before: func(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
			return ctx, data, errors.New("rejected")
		},
	})
	h := &flakyHandler{}
	assert.EqualError(t, c.handleOnce(h, kafka.Message{Topic: h.Topic()}), "rejected")
	assert.Zero(t, h.calls)
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestRegisterHandlerOnce(t *testing.T) {
	c := testConsumer(0)
	c.RegisterHandler(&flakyHandler{})
	c.RegisterHandler(&flakyHandler{})
	assert.Len(t, c.handlers, 1)
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "comove.requests" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

type permanentHandler struct{ calls int }

func (h *permanentHandler) Topic() string { return "comove.requests" }

func (h *permanentHandler) Handle(context.Context, []byte) error {
	h.calls++
	return Permanent(errors.New("bad payload"))
}

func TestHandleWithRetryStopsOnPermanent(t *testing.T) {
	c := testConsumer(5)
	h := &permanentHandler{}
	attempts, err := c.handleWithRetry(h, kafka.Message{Topic: h.Topic()})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.EqualError(t, err, "bad payload")
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, h.calls)
	assert.Nil(t, Permanent(nil))
}
