package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
)

func TestOpensAtFailureThreshold(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute}, nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		err := b.Call(context.Background(), func(context.Context) error { return boom })
		assert.Equal(t, boom, err)
		assert.Equal(t, Closed, b.State())
	}

	err := b.Call(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, boom, err)
	assert.Equal(t, Open, b.State())
}

func TestOpenShortCircuitsWithoutInvokingFn(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, nil)
	boom := errors.New("boom")
	require.Equal(t, boom, b.Call(context.Background(), func(context.Context) error { return boom }))
	require.Equal(t, Open, b.State())

	called := false
	err := b.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUpstreamUnavailable, apiErr.Kind)
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond}, nil)
	boom := errors.New("boom")
	require.Equal(t, boom, b.Call(context.Background(), func(context.Context) error { return boom }))
	require.Equal(t, Open, b.State())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Call(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Call(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond}, nil)
	boom := errors.New("boom")
	require.Equal(t, boom, b.Call(context.Background(), func(context.Context) error { return boom }))
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	require.Equal(t, boom, b.Call(context.Background(), func(context.Context) error { return boom }))
	assert.Equal(t, Open, b.State())
}

func TestEmitsStateChangedEvent(t *testing.T) {
	bus := eventbus.New()
	received := make(chan eventbus.Event, 4)
	bus.Subscribe(func(evt eventbus.Event) { received <- evt })

	b := New("llm", Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, bus)
	boom := errors.New("boom")
	require.Equal(t, boom, b.Call(context.Background(), func(context.Context) error { return boom }))

	select {
	case evt := <-received:
		assert.Equal(t, eventbus.CircuitStateChanged, evt.Kind)
		payload, ok := evt.Payload.(eventbus.CircuitStatePayload)
		require.True(t, ok)
		assert.Equal(t, "llm", payload.Name)
		assert.Equal(t, string(Closed), payload.PreviousState)
		assert.Equal(t, string(Open), payload.NewState)
	case <-time.After(time.Second):
		t.Fatal("expected circuit state changed event")
	}
}
