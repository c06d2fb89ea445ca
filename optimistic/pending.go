package optimistic

import (
	"context"
	"sync"

	"github.com/crypticpy/Grantscope-2-sub004/board"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

// Pending is one in-flight mutation. Snapshot is the exact state of the
// affected containers before the local change; a failed call restores it and
// nothing else.
type Pending struct {
	Seq      uint64
	Mutation domain.Mutation
	Snapshot board.Slice
	// Before is the item as it stood when the action was taken.
	Before domain.Item

	once sync.Once
	done chan struct{}
	err  error
}

func newPending(seq uint64, m domain.Mutation, snap board.Slice, before domain.Item) *Pending {
	return &Pending{Seq: seq, Mutation: m, Snapshot: snap, Before: before, done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the remote call resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the remote outcome. It is nil until Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the remote call resolved or ctx ends. A rejected call
// returns its error after the rollback has been applied.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
