// Package debounce drops action requests that arrive too soon after the
// previous accepted one.
package debounce

import (
	"sync"
	"time"

	"github.com/crypticpy/Grantscope-2-sub004/clock"
)

// DefaultThreshold is the minimum spacing between accepted actions of one gate.
const DefaultThreshold = 300 * time.Millisecond

// Gate keys used by the engine.
const (
	GateReview = "review"
	GateUndo   = "undo"
)

// Debouncer keeps one last-accepted instant per gate key.
type Debouncer struct {
	clock     clock.Clock
	threshold time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// New creates a debouncer. A non-positive threshold uses DefaultThreshold and
// a nil clock uses the process clock.
func New(c clock.Clock, threshold time.Duration) *Debouncer {
	if c == nil {
		c = clock.Real()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Debouncer{clock: c, threshold: threshold, last: make(map[string]time.Time)}
}

// TryAccept reports whether the caller may proceed. It records now for key
// only when more than the threshold has elapsed since the last accepted call.
func (d *Debouncer) TryAccept(key string) bool {
	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.last[key]; ok && now.Sub(prev) <= d.threshold {
		return false
	}
	d.last[key] = now
	return true
}
