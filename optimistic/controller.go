// Package optimistic applies board mutations locally before the server
// confirms them and rolls them back when it does not.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/crypticpy/Grantscope-2-sub004/board"
	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
	"github.com/crypticpy/Grantscope-2-sub004/notify"
	"github.com/crypticpy/Grantscope-2-sub004/undo"
)

var (
	// ErrNothingToUndo is returned by Undo when no record is inside the window.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrClosed is returned for calls made after Close and resolves calls
	// still in flight when Close ran.
	ErrClosed = errors.New("controller closed")
	// ErrUnsupported is returned for an unknown mutation kind.
	ErrUnsupported = errors.New("unsupported mutation")
)

// Mutator performs a mutation on the server. It returns an error for any
// non-success outcome and never applies a mutation partially.
type Mutator interface {
	PerformMutation(ctx context.Context, m domain.Mutation) error
}

// Decision is the outcome of reviewing an item in the review queue.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDismiss Decision = "dismiss"
)

// Options holds the optional collaborators of a Controller.
type Options struct {
	Notifier notify.Notifier
	Logger   *log.Logger
	Clock    clock.Clock
	// NewKey generates idempotency keys. Defaults to random UUIDs.
	NewKey func() string
	// OnSettled runs after a remote call resolved and any rollback or undo
	// record was applied.
	OnSettled func(p *Pending)
}

// Controller is the only writer of the board store.
type Controller struct {
	store    *board.Store
	remote   Mutator
	undo     *undo.Stack
	notifier notify.Notifier
	logger   *log.Logger
	clock    clock.Clock
	newKey   func() string
	settled  func(*Pending)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	seq      uint64
	inflight map[uint64]*Pending
	closed   bool
}

// New creates a controller over store. A nil undo stack disables undo.
func New(store *board.Store, remote Mutator, stack *undo.Stack, opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.NewKey == nil {
		opts.NewKey = func() string { return uuid.NewString() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:    store,
		remote:   remote,
		undo:     stack,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		clock:    opts.Clock,
		newKey:   opts.NewKey,
		settled:  opts.OnSettled,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[uint64]*Pending),
	}
}

// Board returns the read-only view of the store.
func (c *Controller) Board() board.Reader { return c.store }

// Load replaces the board with a server listing.
func (c *Controller) Load(items []domain.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Load(items)
}

// InFlight counts remote calls that have not resolved.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Apply changes the board immediately and sends m to the server in the
// background. A local validation error is returned without any remote call.
// The remote call does not inherit ctx cancellation; it ends with Close.
func (c *Controller) Apply(ctx context.Context, m domain.Mutation) (*Pending, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	p, err := c.applyLocked(m)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.inflight[p.Seq] = p
	c.mu.Unlock()
	c.launch(p)
	return p, nil
}

func (c *Controller) launch(p *Pending) {
	c.logger.WithFields(log.Fields{
		"seq":     p.Seq,
		"kind":    p.Mutation.Kind,
		"item_id": p.Mutation.ItemID,
		"to":      p.Mutation.ToContainer,
		"pos":     p.Mutation.ToPosition,
	}).Debug("mutation applied locally")

	go c.send(p)
}

func (c *Controller) applyLocked(m domain.Mutation) (*Pending, error) {
	cur, ok := c.store.Get(m.ItemID)
	switch m.Kind {
	case domain.MutationMove:
		if !ok {
			return nil, fmt.Errorf("move %s: %w", m.ItemID, board.ErrItemNotFound)
		}
		snap := c.store.Capture(cur.ContainerID, m.ToContainer)
		before, err := c.store.Move(m.ItemID, m.ToContainer, m.ToPosition)
		if err != nil {
			return nil, fmt.Errorf("move %s: %w", m.ItemID, err)
		}
		m.FromContainer, m.FromPosition = before.ContainerID, before.Position
		return c.track(m, snap, before), nil

	case domain.MutationRemove:
		if !ok {
			return nil, fmt.Errorf("remove %s: %w", m.ItemID, board.ErrItemNotFound)
		}
		snap := c.store.Capture(cur.ContainerID)
		before, err := c.store.Remove(m.ItemID)
		if err != nil {
			return nil, fmt.Errorf("remove %s: %w", m.ItemID, err)
		}
		m.FromContainer, m.FromPosition = before.ContainerID, before.Position
		m.Item = &before
		return c.track(m, snap, before), nil

	case domain.MutationRestore:
		if m.Item == nil {
			return nil, fmt.Errorf("restore %s: missing item", m.ItemID)
		}
		item := *m.Item
		item.ID = m.ItemID
		containers := []string{m.ToContainer}
		before := item
		if ok {
			containers = append(containers, cur.ContainerID)
			before = cur
			m.FromContainer, m.FromPosition = cur.ContainerID, cur.Position
		}
		snap := c.store.Capture(containers...)
		placed := c.store.Insert(item, m.ToContainer, m.ToPosition)
		m.ToPosition = placed.Position
		m.Item = &placed
		return c.track(m, snap, before), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, m.Kind)
}

func (c *Controller) track(m domain.Mutation, snap board.Slice, before domain.Item) *Pending {
	if m.IdempotencyKey == "" {
		m.IdempotencyKey = c.newKey()
	}
	c.seq++
	return newPending(c.seq, m, snap, before)
}

func (c *Controller) send(p *Pending) {
	err := c.remote.PerformMutation(c.ctx, p.Mutation)

	c.mu.Lock()
	delete(c.inflight, p.Seq)
	if c.closed {
		c.mu.Unlock()
		p.resolve(ErrClosed)
		return
	}
	if err != nil {
		c.store.Restore(p.Snapshot, p.Mutation.ItemID)
	} else if p.Mutation.Undoable && c.undo != nil {
		c.undo.Push(domain.UndoRecord{
			Type:      undoType(p.Mutation),
			Item:      p.Before,
			Timestamp: c.clock.Now(),
			Reason:    p.Mutation.Reason,
		})
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"seq":     p.Seq,
			"kind":    p.Mutation.Kind,
			"item_id": p.Mutation.ItemID,
		}).Warn("mutation rejected; rolled back")
		c.notifier.Notify(notify.Error(domain.KindMutationRejected, rejectedMessage(p, err)))
	} else if p.Mutation.Kind == domain.MutationRestore && p.Mutation.Reason == undoReason {
		c.notifier.Notify(notify.Info(domain.KindUndone, fmt.Sprintf("Restored %q", p.Before.Title)))
	}
	p.resolve(err)
	if c.settled != nil {
		c.settled(p)
	}
}

const undoReason = "undo"

// Undo re-inserts the item of the most recent valid undo record at the
// container and position recorded when the action was taken. The restore
// goes through the optimistic path and rolls back if the server rejects it.
// The record is consumed only once the restore has been applied locally.
func (c *Controller) Undo(ctx context.Context) (*Pending, error) {
	if c.undo == nil {
		return nil, ErrNothingToUndo
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	rec, ok := c.undo.MostRecentValid()
	if !ok {
		c.mu.Unlock()
		return nil, ErrNothingToUndo
	}
	item := rec.Item
	p, err := c.applyLocked(domain.Mutation{
		Kind:        domain.MutationRestore,
		ItemID:      item.ID,
		ToContainer: item.ContainerID,
		ToPosition:  item.Position,
		Item:        &item,
		Reason:      undoReason,
	})
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.undo.PopValid()
	c.inflight[p.Seq] = p
	c.mu.Unlock()
	c.launch(p)
	return p, nil
}

// Review moves an item out of the review queue into the approved or
// dismissed container. The action can be undone.
func (c *Controller) Review(ctx context.Context, itemID string, d Decision, reason string) (*Pending, error) {
	var to string
	switch d {
	case DecisionApprove:
		to = domain.ContainerApproved
	case DecisionDismiss:
		to = domain.ContainerDismissed
	default:
		return nil, fmt.Errorf("%w: review decision %q", ErrUnsupported, d)
	}
	pos := len(c.store.Container(to))
	if cur, ok := c.store.Get(itemID); ok && cur.ContainerID == to {
		pos--
	}
	return c.Apply(ctx, domain.Mutation{
		Kind:        domain.MutationMove,
		ItemID:      itemID,
		ToContainer: to,
		ToPosition:  pos,
		Reason:      reason,
		Undoable:    true,
		UndoType:    string(d),
	})
}

// Close abandons in-flight calls. Their late results no longer touch the
// board or the undo stack. Safe to call repeatedly.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func undoType(m domain.Mutation) string {
	if m.UndoType != "" {
		return m.UndoType
	}
	return string(m.Kind)
}

func rejectedMessage(p *Pending, err error) string {
	title := p.Before.Title
	if title == "" {
		title = p.Mutation.ItemID
	}
	switch p.Mutation.Kind {
	case domain.MutationMove:
		return fmt.Sprintf("Could not move %q: %v", title, err)
	case domain.MutationRemove:
		return fmt.Sprintf("Could not remove %q: %v", title, err)
	default:
		return fmt.Sprintf("Could not restore %q: %v", title, err)
	}
}
