package sessionclock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = time.Second

// Option configures a Clock.
type Option func(*Clock)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) {
		if now != nil {
			c.now = now
		}
	}
}

// OnTick registers a callback receiving the remaining whole seconds after every
// tick that did not expire the session.
func OnTick(fn func(remaining time.Duration)) Option {
	return func(c *Clock) { c.onTick = fn }
}

// OnExpired registers the callback fired once when the session expires.
func OnExpired(fn func()) Option {
	return func(c *Clock) { c.onExpired = fn }
}

// Clock is a per-view countdown. It is not persisted.
type Clock struct {
	expiry    time.Time
	interval  time.Duration
	now       func() time.Time
	onTick    func(time.Duration)
	onExpired func()

	startOnce  sync.Once
	stopOnce   sync.Once
	expireOnce sync.Once
	stop       chan struct{}
	done       chan struct{}
	expired    chan struct{}

	// set while onTick or onExpired runs on the clock goroutine
	inCallback atomic.Bool
}

// New returns a stopped clock counting down to expiry.
func New(expiry time.Time, opts ...Option) *Clock {
	c := &Clock{
		expiry:   expiry,
		interval: DefaultInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		expired:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start checks the expiry immediately and then on every tick until the session
// expires, Stop is called or ctx is cancelled. Calling Start again is a no-op.
//
// The expiry callback returns before Expired and Done are closed. Callbacks may
// call Stop.
func (c *Clock) Start(ctx context.Context) {
	started := false
	c.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	go c.run(ctx)
}

func (c *Clock) run(ctx context.Context) {
	defer close(c.done)
	if !c.loop(ctx) {
		return
	}
	if c.onExpired != nil {
		c.callback(c.onExpired)
	}
	c.expireOnce.Do(func() { close(c.expired) })
}

func (c *Clock) callback(fn func()) {
	c.inCallback.Store(true)
	defer c.inCallback.Store(false)
	fn()
}

func (c *Clock) loop(ctx context.Context) bool {
	if c.check() {
		return true
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.stop:
			return false
		case <-ticker.C:
			if c.check() {
				return true
			}
		}
	}
}

// check reports whether the session has expired.
func (c *Clock) check() bool {
	remaining := c.Remaining()
	if remaining <= 0 {
		return true
	}
	if c.onTick != nil {
		c.callback(func() { c.onTick(remaining) })
	}
	return false
}

// Stop cancels the countdown and waits for the tick goroutine to exit. A clock
// that was never started is marked done. Called from a callback, Stop returns
// without waiting; the goroutine exits once the callback returns.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.startOnce.Do(func() { close(c.done) })
	if c.inCallback.Load() {
		return
	}
	<-c.done
}

// Remaining returns the whole seconds left before expiry, never negative.
func (c *Clock) Remaining() time.Duration {
	secs := c.expiry.Unix() - c.now().Unix()
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Expiry returns the instant the clock counts down to.
func (c *Clock) Expiry() time.Time { return c.expiry }

// Expired is closed once the session has expired and the expiry callback has
// returned.
func (c *Clock) Expired() <-chan struct{} { return c.expired }

// Done is closed once the clock has stopped for any reason.
func (c *Clock) Done() <-chan struct{} { return c.done }

// Format renders d as MM:SS. Minutes are not wrapped into hours.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
