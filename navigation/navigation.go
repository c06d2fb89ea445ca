// Package navigation turns key presses and swipe gestures over an ordered
// list of items into focus changes and debounced actions.
package navigation

import (
	"math"
	"sync"

	"github.com/crypticpy/Grantscope-2-sub004/debounce"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

// Default swipe thresholds. A drag below both is a tap.
const (
	DefaultSwipeOffset   = 100
	DefaultSwipeVelocity = 500
)

// Actions are the callbacks the controller drives. Nil callbacks are
// skipped.
type Actions struct {
	Primary   func(item domain.Item)
	Secondary func(item domain.Item)
	Undo      func()
	// ScrollIntoView runs after every focus change.
	ScrollIntoView func(index int, item domain.Item)
}

// Thresholds configures swipe detection.
type Thresholds struct {
	Offset   float64
	Velocity float64
}

// Drag is the horizontal displacement and velocity of a finished drag.
type Drag struct {
	OffsetX   float64
	VelocityX float64
}

// Gesture is the classification of a drag.
type Gesture int

const (
	GestureTap Gesture = iota
	GestureSwipeRight
	GestureSwipeLeft
)

func (g Gesture) String() string {
	switch g {
	case GestureSwipeRight:
		return "swipe-right"
	case GestureSwipeLeft:
		return "swipe-left"
	default:
		return "tap"
	}
}

// Options holds the optional settings of a Controller.
type Options struct {
	Keymap     Keymap
	Thresholds Thresholds
}

// Controller tracks the focused index over the visible items.
type Controller struct {
	gates      *debounce.Debouncer
	actions    Actions
	keymap     Keymap
	thresholds Thresholds

	mu      sync.Mutex
	items   []domain.Item
	focused int
}

// New creates a controller with no items and no focus.
func New(gates *debounce.Debouncer, actions Actions, opts Options) *Controller {
	if opts.Keymap == nil {
		opts.Keymap = DefaultKeymap()
	}
	if opts.Thresholds.Offset <= 0 {
		opts.Thresholds.Offset = DefaultSwipeOffset
	}
	if opts.Thresholds.Velocity <= 0 {
		opts.Thresholds.Velocity = DefaultSwipeVelocity
	}
	return &Controller{
		gates:      gates,
		actions:    actions,
		keymap:     opts.Keymap,
		thresholds: opts.Thresholds,
		focused:    -1,
	}
}

// SetItems replaces the visible items. A focus past the end snaps to the
// last item, or to no focus when the list is empty. A list that gains its
// first items focuses the first one.
func (c *Controller) SetItems(items []domain.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]domain.Item(nil), items...)
	switch {
	case len(c.items) == 0:
		c.focused = -1
	case c.focused >= len(c.items):
		c.focused = len(c.items) - 1
	case c.focused < 0:
		c.focused = 0
	}
}

// Items returns a copy of the visible items.
func (c *Controller) Items() []domain.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Item(nil), c.items...)
}

// FocusedIndex returns the focused index, or -1.
func (c *Controller) FocusedIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// Focused returns the focused item.
func (c *Controller) Focused() (domain.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focusedLocked()
}

// Focus moves the focus to the item with the given id.
func (c *Controller) Focus(id string) bool {
	c.mu.Lock()
	idx := -1
	for i, it := range c.items {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.focused = idx
	item := c.items[idx]
	c.mu.Unlock()
	c.scroll(idx, item)
	return true
}

// Next focuses the following item, wrapping to the first.
func (c *Controller) Next() bool { return c.step(1) }

// Previous focuses the preceding item, wrapping to the last.
func (c *Controller) Previous() bool { return c.step(-1) }

func (c *Controller) step(delta int) bool {
	c.mu.Lock()
	n := len(c.items)
	if n == 0 {
		c.mu.Unlock()
		return false
	}
	switch {
	case c.focused < 0 && delta > 0:
		c.focused = 0
	case c.focused < 0:
		c.focused = n - 1
	default:
		c.focused = ((c.focused+delta)%n + n) % n
	}
	idx, item := c.focused, c.items[c.focused]
	c.mu.Unlock()
	c.scroll(idx, item)
	return true
}

// DispatchPrimary runs the primary action on the focused item unless the
// review gate rejects it. It reports whether the action ran.
func (c *Controller) DispatchPrimary() bool {
	return c.dispatch(c.actions.Primary)
}

// DispatchSecondary runs the secondary action on the focused item unless
// the review gate rejects it.
func (c *Controller) DispatchSecondary() bool {
	return c.dispatch(c.actions.Secondary)
}

func (c *Controller) dispatch(action func(domain.Item)) bool {
	if action == nil {
		return false
	}
	c.mu.Lock()
	item, ok := c.focusedLocked()
	c.mu.Unlock()
	if !ok || !c.gates.TryAccept(debounce.GateReview) {
		return false
	}
	action(item)
	return true
}

// DispatchUndo runs the undo action through its own gate.
func (c *Controller) DispatchUndo() bool {
	if c.actions.Undo == nil || !c.gates.TryAccept(debounce.GateUndo) {
		return false
	}
	c.actions.Undo()
	return true
}

// HandleKey runs the command bound to key. It reports whether the key is
// bound; a bound key whose action was debounced still counts as handled.
func (c *Controller) HandleKey(key string) bool {
	cmd, ok := c.keymap[key]
	if !ok {
		return false
	}
	switch cmd {
	case CmdNext:
		c.Next()
	case CmdPrevious:
		c.Previous()
	case CmdPrimary:
		c.DispatchPrimary()
	case CmdSecondary:
		c.DispatchSecondary()
	case CmdUndo:
		c.DispatchUndo()
	}
	return true
}

// Classify reports what a drag amounts to. Direction follows the offset,
// or the velocity when only the velocity crossed its threshold.
func (c *Controller) Classify(d Drag) Gesture {
	offset, velocity := math.Abs(d.OffsetX), math.Abs(d.VelocityX)
	if offset < c.thresholds.Offset && velocity < c.thresholds.Velocity {
		return GestureTap
	}
	dir := d.OffsetX
	if offset < c.thresholds.Offset || dir == 0 {
		dir = d.VelocityX
	}
	if dir > 0 {
		return GestureSwipeRight
	}
	return GestureSwipeLeft
}

// HandleDrag maps a right swipe to the primary action and a left swipe to
// the secondary one. A tap triggers nothing. It returns the classification
// and whether an action ran.
func (c *Controller) HandleDrag(d Drag) (Gesture, bool) {
	g := c.Classify(d)
	switch g {
	case GestureSwipeRight:
		return g, c.DispatchPrimary()
	case GestureSwipeLeft:
		return g, c.DispatchSecondary()
	}
	return g, false
}

func (c *Controller) focusedLocked() (domain.Item, bool) {
	if c.focused < 0 || c.focused >= len(c.items) {
		return domain.Item{}, false
	}
	return c.items[c.focused], true
}

func (c *Controller) scroll(idx int, item domain.Item) {
	if c.actions.ScrollIntoView != nil {
		c.actions.ScrollIntoView(idx, item)
	}
}
