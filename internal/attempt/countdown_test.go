package attempt

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownExpiresExactlyOnce(t *testing.T) {
	var fired int32
	c := NewCountdown(3, func() {
		atomic.AddInt32(&fired, 1)
	})
	c.interval = time.Millisecond
	c.Start()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&fired) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("expire fired %d times, want 1", n)
	}
	if c.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", c.Remaining())
	}
	if !c.Expired() {
		t.Fatal("countdown not marked expired")
	}
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	var fired int32
	c := NewCountdown(5, func() {
		atomic.AddInt32(&fired, 1)
	})
	c.interval = time.Millisecond
	c.Start()
	c.Stop()

	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("expire fired %d times after Stop", n)
	}
}

func TestCountdownStartIsOneShot(t *testing.T) {
	c := NewCountdown(1000, nil)
	c.interval = time.Millisecond
	c.Start()
	c.Start() // second Start must not arm a second timer chain

	time.Sleep(50 * time.Millisecond)
	c.Stop()

	remaining := c.Remaining()
	elapsed := 1000 - remaining
	// With a doubled timer chain the clock would tick roughly twice as
	// fast; allow generous scheduling slack instead of asserting exactly.
	if elapsed > 500 {
		t.Fatalf("clock ticked %d times in ~50ms; double-armed timer?", elapsed)
	}
}
