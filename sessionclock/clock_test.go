package sessionclock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestAlreadyExpiredFiresWithoutTick(t *testing.T) {
	fired := make(chan struct{}, 2)
	c := New(time.Unix(0, 0),
		WithInterval(time.Hour),
		OnExpired(func() { fired <- struct{}{} }),
	)
	c.Start(context.Background())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback did not fire for an exp=0 token")
	}
	waitClosed(t, c.Expired(), "expired")
	waitClosed(t, c.Done(), "done")
	assert.Zero(t, c.Remaining())
}

func TestExpiryFiresExactlyOnce(t *testing.T) {
	clock := &fakeNow{t: time.Unix(1_000, 0)}
	var expiredCount atomic.Int32
	fired := make(chan struct{}, 4)
	var ticks []time.Duration
	var mu sync.Mutex

	c := New(time.Unix(1_003, 0),
		WithInterval(5*time.Millisecond),
		WithNow(clock.Now),
		OnTick(func(d time.Duration) {
			mu.Lock()
			ticks = append(ticks, d)
			mu.Unlock()
			clock.Advance(time.Second)
		}),
		OnExpired(func() {
			expiredCount.Add(1)
			fired <- struct{}{}
		}),
	)
	c.Start(context.Background())
	c.Start(context.Background())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback did not fire")
	}
	waitClosed(t, c.Done(), "done")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), expiredCount.Load())
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, ticks)
	assert.Equal(t, 3*time.Second, ticks[0])
	for _, d := range ticks {
		assert.Positive(t, d)
	}
}

func TestStopPreventsExpiry(t *testing.T) {
	var expired atomic.Bool
	c := New(time.Now().Add(time.Hour),
		WithInterval(time.Millisecond),
		OnExpired(func() { expired.Store(true) }),
	)
	c.Start(context.Background())
	c.Stop()
	c.Stop()

	waitClosed(t, c.Done(), "done")
	assert.False(t, expired.Load())
	select {
	case <-c.Expired():
		t.Fatal("expired channel closed after Stop")
	default:
	}
}

func TestContextCancelStopsClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(time.Now().Add(time.Hour), WithInterval(time.Millisecond))
	c.Start(ctx)
	cancel()
	waitClosed(t, c.Done(), "done")
}

func TestStopWithoutStart(t *testing.T) {
	c := New(time.Now().Add(time.Minute))
	c.Stop()
	waitClosed(t, c.Done(), "done")

	// Start after Stop must not spawn a goroutine.
	c.Start(context.Background())
}

func TestExpiryCallbackMayStopClock(t *testing.T) {
	fired := make(chan struct{})
	var c *Clock
	c = New(time.Unix(0, 0), OnExpired(func() {
		c.Stop()
		close(fired)
	}))
	c.Start(context.Background())

	waitClosed(t, fired, "expiry callback")
}

func TestTickCallbackMayStopClock(t *testing.T) {
	returned := make(chan struct{})
	var once sync.Once
	var c *Clock
	c = New(time.Now().Add(time.Hour),
		WithInterval(10*time.Millisecond),
		OnTick(func(time.Duration) {
			c.Stop()
			once.Do(func() { close(returned) })
		}),
	)
	c.Start(context.Background())

	waitClosed(t, returned, "Stop inside the tick callback to return")
	waitClosed(t, c.Done(), "done")
	c.Stop()
}

func TestExpiredClosesAfterCallbackReturns(t *testing.T) {
	var finished atomic.Bool
	c := New(time.Unix(0, 0), OnExpired(func() {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}))
	c.Start(context.Background())

	waitClosed(t, c.Expired(), "expired")
	assert.True(t, finished.Load(), "Expired closed before the callback returned")
	c.Stop()
	waitClosed(t, c.Done(), "done")
}

func TestFormat(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                "00:00",
		-time.Second:                     "00:00",
		9 * time.Second:                  "00:09",
		61 * time.Second:                 "01:01",
		59*time.Minute + 59*time.Second:  "59:59",
		125 * time.Minute:                "125:00",
		1500 * time.Millisecond:          "00:01",
	}
	for in, want := range cases {
		assert.Equal(t, want, Format(in), "Format(%s)", in)
	}
}
