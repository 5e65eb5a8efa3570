package attempt

import (
	"sync"
	"time"
)

// Countdown is a cancellable one-second countdown. Every tick arms exactly
// one further one-shot timer, so stopping the countdown can never leave a
// second timer behind, and expiry fires the callback exactly once.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	timer     *time.Timer
	stopped   bool
	expired   bool
	interval  time.Duration
	onExpire  func()
}

func NewCountdown(seconds int, onExpire func()) *Countdown {
	return &Countdown{
		remaining: seconds,
		interval:  time.Second,
		onExpire:  onExpire,
	}
}

func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.interval, c.tick)
}

func (c *Countdown) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	c.remaining--
	if c.remaining > 0 {
		c.timer = time.AfterFunc(c.interval, c.tick)
		c.mu.Unlock()
		return
	}

	c.remaining = 0
	c.stopped = true
	c.expired = true
	onExpire := c.onExpire
	// Release before calling out; the callback will usually take the
	// session lock, which may itself be held by someone calling Stop.
	c.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}

// Stop tears the countdown down. Safe to call more than once and after
// expiry.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Remaining reports the seconds left on the clock.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown ran all the way to zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}
