package engine

import (
	"sync"
	"time"
)

// tickerFunc produces a tick channel and its stop function. Tests swap in
// a manual source to drive the countdown deterministically.
type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Clock counts a per-question time budget down at 1 Hz and fires exactly
// one expiration per Start/Reset cycle. Each cycle carries a generation
// number; Reset and Stop bump it, so a tick or expiration that was already
// in flight becomes a no-op instead of mutating state it no longer owns.
//
// Callbacks run on the clock's goroutine with no clock lock held, so they
// may re-enter session state behind the session's own mutex.
type Clock struct {
	onTick   func(remaining int)
	onExpire func(gen uint64)

	mu        sync.Mutex
	newTicker tickerFunc
	gen       uint64
	remaining int
	ticking   bool
	stopped   bool
	cancel    func()
	done      chan struct{}
}

// NewClock builds a wall-clock driven countdown. Either callback may be nil.
func NewClock(onTick func(remaining int), onExpire func(gen uint64)) *Clock {
	return newClockWithTicker(onTick, onExpire, realTicker)
}

func newClockWithTicker(onTick func(int), onExpire func(uint64), tf tickerFunc) *Clock {
	return &Clock{
		onTick:    onTick,
		onExpire:  onExpire,
		newTicker: tf,
	}
}

// Start begins a fresh countdown from seconds.
func (c *Clock) Start(seconds int) uint64 {
	return c.Reset(seconds)
}

// Reset cancels any pending expiration and restarts the countdown from
// seconds. It returns the new generation so the owner can recognize
// expirations that belong to this cycle.
func (c *Clock) Reset(seconds int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.gen++
	c.remaining = seconds
	c.stopped = false
	c.startTickerLocked()
	return c.gen
}

// Pause stops ticking without losing the remaining count.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ticking {
		return
	}
	c.ticking = false
	c.cancelLocked()
}

// Resume restarts ticking from the remaining count. It is a no-op while
// stopped, already ticking, or after the countdown has reached zero.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticking || c.stopped || c.remaining <= 0 {
		return
	}
	c.startTickerLocked()
}

// Stop cancels ticking permanently for this cycle. Idempotent.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.ticking = false
	c.gen++
	c.cancelLocked()
}

// Remaining returns the seconds left in the current cycle.
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Clock) startTickerLocked() {
	ch, stop := c.newTicker(time.Second)
	done := make(chan struct{})
	c.cancel = stop
	c.done = done
	c.ticking = true
	go c.run(ch, done, c.gen)
}

func (c *Clock) cancelLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *Clock) run(ch <-chan time.Time, done chan struct{}, gen uint64) {
	for {
		select {
		case <-done:
			return
		case <-ch:
		}

		c.mu.Lock()
		if gen != c.gen || !c.ticking {
			c.mu.Unlock()
			return
		}
		if c.remaining > 0 {
			c.remaining--
		}
		remaining := c.remaining
		expired := remaining == 0
		if expired {
			c.ticking = false
			c.cancelLocked()
		}
		c.mu.Unlock()

		if c.onTick != nil {
			c.onTick(remaining)
		}
		if expired {
			if c.onExpire != nil {
				c.onExpire(gen)
			}
			return
		}
	}
}
