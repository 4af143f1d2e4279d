package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Advance moves virtual time forward and
// runs due callbacks synchronously, in scheduling-time order, on the calling
// goroutine. Callbacks may schedule or stop other timers.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	seq    int
}

type fakeTimer struct {
	clk     *Fake
	when    time.Time
	seq     int
	f       func()
	fired   bool
	stopped bool
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{
		clk:  c,
		when: c.now.Add(d),
		seq:  c.seq,
		f:    f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward by d, firing every timer due within
// that window. The lock is released while a callback runs so callbacks can
// use the clock.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		if t.when.After(c.now) {
			c.now = t.when
		}
		t.fired = true
		f := t.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

// nextDue returns the earliest pending timer at or before target,
// breaking ties by scheduling order. Caller holds the lock.
func (c *Fake) nextDue(target time.Time) *fakeTimer {
	var next *fakeTimer
	for _, t := range c.timers {
		if t.fired || t.stopped || t.when.After(target) {
			continue
		}
		if next == nil || t.when.Before(next.when) ||
			(t.when.Equal(next.when) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
