// Package clock measures frame timing for the render loop.
package clock

import (
	"time"

	"github.com/loov/hrtime"
)

// Clock tracks time since creation and the duration of the last frame.
type Clock struct {
	now    func() time.Duration
	start  time.Duration
	last   time.Duration
	delta  time.Duration
	frames uint64
}

func New() *Clock {
	return NewWithSource(hrtime.Now)
}

// NewWithSource builds a clock on a custom monotonic time source.
func NewWithSource(now func() time.Duration) *Clock {
	t := now()
	return &Clock{
		now:   now,
		start: t,
		last:  t,
	}
}

// Tick marks the start of a new frame and returns the time since the
// previous tick.
func (c *Clock) Tick() time.Duration {
	t := c.now()
	c.delta = t - c.last
	c.last = t
	c.frames++
	return c.delta
}

func (c *Clock) Delta() time.Duration { return c.delta }

func (c *Clock) Frames() uint64 { return c.frames }

func (c *Clock) Elapsed() time.Duration {
	return c.now() - c.start
}

// FPS is the instantaneous rate implied by the last frame delta.
func (c *Clock) FPS() float64 {
	if c.delta <= 0 {
		return 0
	}
	return 1 / c.delta.Seconds()
}
