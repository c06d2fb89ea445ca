package undo

import (
	"sync"
	"time"

	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

// DefaultTick is the display refresh interval of the undo affordance.
const DefaultTick = 100 * time.Millisecond

// Affordance is what the UI renders for the undo toast.
type Affordance struct {
	Visible   bool
	Record    domain.UndoRecord
	Remaining time.Duration
}

// Countdown re-renders the undo affordance on a fixed tick. The tick only
// drives display; validity always comes from the stack's clock check.
type Countdown struct {
	stack  *Stack
	clock  clock.Clock
	tick   time.Duration
	render func(Affordance)

	mu    sync.Mutex
	alive bool
	timer clock.Timer
}

// NewCountdown creates a countdown over stack. render is called on every tick.
func NewCountdown(stack *Stack, c clock.Clock, tick time.Duration, render func(Affordance)) *Countdown {
	if c == nil {
		c = clock.Real()
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Countdown{stack: stack, clock: c, tick: tick, render: render}
}

// Start renders immediately and keeps ticking until nothing is undoable or
// Stop is called. Starting a running countdown is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = true
	c.mu.Unlock()
	c.fire()
}

// Stop clears the timer and suppresses any late tick. Safe to call twice.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Running reports whether the countdown is ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *Countdown) fire() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	a := c.Current()
	if c.render != nil {
		c.render(a)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return
	}
	if !a.Visible {
		c.alive = false
		c.timer = nil
		return
	}
	c.timer = c.clock.AfterFunc(c.tick, c.fire)
}

// Current computes the affordance at this instant.
func (c *Countdown) Current() Affordance {
	r, ok := c.stack.MostRecentValid()
	if !ok {
		return Affordance{}
	}
	return Affordance{Visible: true, Record: r, Remaining: c.stack.TimeRemaining(r)}
}
