// Package notify is the single channel through which user-visible messages
// leave the engine.
package notify

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

// Notifier receives user-visible notifications.
type Notifier interface {
	Notify(n domain.Notification)
}

// Func adapts a plain function to Notifier.
type Func func(domain.Notification)

func (f Func) Notify(n domain.Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(domain.Notification) {})

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// Broker logs each notification and fans it out to subscribers. A
// subscriber whose queue is full misses the message instead of blocking the
// sender.
type Broker struct {
	logger *log.Logger
	buffer int

	mu      sync.Mutex
	subs    map[chan domain.Notification]struct{}
	dropped int
}

// NewBroker creates a broker. A nil logger uses the logrus standard logger.
func NewBroker(logger *log.Logger, buffer int) *Broker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{logger: logger, buffer: buffer, subs: make(map[chan domain.Notification]struct{})}
}

// Subscribe returns a channel of notifications and a function that
// unsubscribes and closes it. The cancel function may be called repeatedly.
func (b *Broker) Subscribe() (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Notify implements Notifier.
func (b *Broker) Notify(n domain.Notification) {
	entry := b.logger.WithFields(log.Fields{"kind": n.Kind, "level": n.Level})
	switch n.Level {
	case domain.LevelError:
		entry.Error(n.Message)
	case domain.LevelWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.dropped++
		}
	}
}

// Dropped counts notifications lost to full subscriber queues.
func (b *Broker) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Error builds an error-level notification.
func Error(kind, msg string) domain.Notification {
	return domain.Notification{Level: domain.LevelError, Kind: kind, Message: msg}
}

// Warning builds a warning-level notification.
func Warning(kind, msg string) domain.Notification {
	return domain.Notification{Level: domain.LevelWarning, Kind: kind, Message: msg}
}

// Success builds a success-level notification.
func Success(kind, msg string) domain.Notification {
	return domain.Notification{Level: domain.LevelSuccess, Kind: kind, Message: msg}
}

// Info builds an info-level notification.
func Info(kind, msg string) domain.Notification {
	return domain.Notification{Level: domain.LevelInfo, Kind: kind, Message: msg}
}
