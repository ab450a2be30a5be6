package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 502")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newBreaker(t *testing.T) (*CircuitBreaker, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	cb := New("atlas_api", 2, 30*time.Second)
	cb.SetClock(clk.now)
	return cb, clk
}

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newBreaker(t)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	require.NoError(t, cb.Call(ctx, succeed), "success resets the count")
	assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb, clk := newBreaker(t)
	ctx := context.Background()
	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, fail)

	clk.t = clk.t.Add(29 * time.Second)
	assert.ErrorIs(t, cb.Call(ctx, succeed), ErrOpen)

	clk.t = clk.t.Add(time.Second)
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Stats()["failures"])
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newBreaker(t)
	ctx := context.Background()
	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, fail)

	clk.t = clk.t.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	// 重新计时
	clk.t = clk.t.Add(10 * time.Second)
	assert.ErrorIs(t, cb.Call(ctx, succeed), ErrOpen)
}

func TestBreaker_HalfOpenAllowsSingleTrial(t *testing.T) {
	cb, clk := newBreaker(t)
	ctx := context.Background()
	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, fail)
	clk.t = clk.t.Add(30 * time.Second)

	var inner error
	err := cb.Call(ctx, func() error {
		assert.Equal(t, StateHalfOpen, cb.State())
		inner = cb.Call(ctx, succeed)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrOpen)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_CanceledContext(t *testing.T) {
	cb, _ := newBreaker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cb.Call(ctx, succeed), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}
