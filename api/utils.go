package api

import (
	"sync/atomic"
	"time"
)

var lastTimestamp atomic.Int64

// nextTimestamp returns a strictly increasing UnixNano stamp for commands
// accepted by this process.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastTimestamp.Load()
		if now <= last {
			now = last + 1
		}
		if lastTimestamp.CompareAndSwap(last, now) {
			return now
		}
	}
}
