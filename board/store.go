// Package board owns the local copy of the board.
//
// Items live in an arena keyed by id; each container holds an ordered slice of
// ids, so an item's position is its index and positions are dense by
// construction. Only the optimistic controller writes to a Store (apply,
// rollback and undo-restore); everything else reads through Reader.
package board

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidPosition = errors.New("invalid position")
)

// Reader is the read-only view handed to components that must not write.
type Reader interface {
	Snapshot() domain.Board
	Container(id string) []domain.Item
	Get(id string) (domain.Item, bool)
	Revision() uint64
}

// Slice is the exact state of a set of containers, captured before a change.
type Slice struct {
	Containers map[string][]domain.Item
}

// Store is the single owned copy of the board.
type Store struct {
	mu    sync.RWMutex
	items map[string]domain.Item
	order map[string][]string
	rev   uint64
}

// New creates an empty store with the given containers.
func New(containers ...string) *Store {
	s := &Store{
		items: make(map[string]domain.Item),
		order: make(map[string][]string),
	}
	for _, c := range containers {
		s.order[c] = nil
	}
	return s
}

// Load replaces the whole board with items, ordered by their reported
// position (ties broken by id) and renumbered densely.
func (s *Store) Load(items []domain.Item) {
	grouped := make(map[string][]domain.Item)
	for _, it := range items {
		grouped[it.ContainerID] = append(grouped[it.ContainerID], it)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string][]string, len(s.order))
	for c := range s.order {
		keep[c] = nil
	}
	s.items = make(map[string]domain.Item, len(items))
	s.order = keep
	for c, seq := range grouped {
		sort.SliceStable(seq, func(i, j int) bool {
			if seq[i].Position == seq[j].Position {
				return seq[i].ID < seq[j].ID
			}
			return seq[i].Position < seq[j].Position
		})
		ids := make([]string, 0, len(seq))
		for _, it := range seq {
			if _, dup := s.items[it.ID]; dup {
				continue
			}
			s.items[it.ID] = it
			ids = append(ids, it.ID)
		}
		s.order[c] = ids
	}
	s.rev++
}

// Snapshot returns a deep copy of the board.
func (s *Store) Snapshot() domain.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(domain.Board, len(s.order))
	for c := range s.order {
		out[c] = s.containerLocked(c)
	}
	return out
}

// Container returns the ordered items of one container.
func (s *Store) Container(id string) []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containerLocked(id)
}

// Containers lists the known container ids in sorted order.
func (s *Store) Containers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.order))
	for c := range s.order {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Get returns an item with its current container and position.
func (s *Store) Get(id string) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return domain.Item{}, false
	}
	it.Position = indexOf(s.order[it.ContainerID], id)
	return it, true
}

// Revision increases on every write.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Capture copies the full sequences of the given containers.
func (s *Store) Capture(containers ...string) Slice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl := Slice{Containers: make(map[string][]domain.Item, len(containers))}
	for _, c := range containers {
		if _, done := sl.Containers[c]; done {
			continue
		}
		sl.Containers[c] = s.containerLocked(c)
	}
	return sl
}

// Move removes the item from its container, closing the gap, and inserts it
// into to at pos, opening room. Within one container pos is the final index.
// It returns the item as it was before the move.
func (s *Store) Move(id, to string, pos int) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if _, known := s.order[to]; !known {
		return domain.Item{}, fmt.Errorf("%w: unknown container %s", ErrInvalidPosition, to)
	}
	from := it.ContainerID
	fromIdx := indexOf(s.order[from], id)
	limit := len(s.order[to])
	if from == to {
		limit--
	}
	if pos < 0 || pos > limit {
		return domain.Item{}, fmt.Errorf("%w: %d not in [0,%d] of %s", ErrInvalidPosition, pos, limit, to)
	}

	before := it
	before.Position = fromIdx
	s.order[from] = removeAt(s.order[from], fromIdx)
	s.order[to] = insertAt(s.order[to], pos, id)
	it.ContainerID = to
	s.items[id] = it
	s.rev++
	return before, nil
}

// Remove deletes the item and closes the gap it leaves.
func (s *Store) Remove(id string) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	idx := indexOf(s.order[it.ContainerID], id)
	s.order[it.ContainerID] = removeAt(s.order[it.ContainerID], idx)
	delete(s.items, id)
	it.Position = idx
	s.rev++
	return it, nil
}

// Insert places item into container at pos, clamped to the container's
// bounds. An item already on the board is taken out of its current place
// first, so re-insertion never duplicates it.
func (s *Store) Insert(item domain.Item, container string, pos int) domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[item.ID]; ok {
		idx := indexOf(s.order[cur.ContainerID], item.ID)
		s.order[cur.ContainerID] = removeAt(s.order[cur.ContainerID], idx)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.order[container]) {
		pos = len(s.order[container])
	}
	item.ContainerID = container
	item.Position = pos
	s.order[container] = insertAt(s.order[container], pos, item.ID)
	s.items[item.ID] = item
	s.rev++
	return item
}

// Restore replaces the captured containers with their captured sequences.
// Items captured in the slice are pulled back from wherever they are now.
// Items that entered a captured container after the capture stay on the
// board after the captured sequence, in their current order, unless their
// id is listed in drop, in which case they leave the board.
func (s *Store) Restore(sl Slice, drop ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]string)
	for c, seq := range sl.Containers {
		for _, it := range seq {
			wanted[it.ID] = c
		}
	}
	dropped := make(map[string]bool, len(drop))
	for _, id := range drop {
		dropped[id] = true
	}
	late := make(map[string][]string)
	for c := range sl.Containers {
		for _, id := range s.order[c] {
			if _, ok := wanted[id]; ok {
				continue
			}
			if dropped[id] {
				delete(s.items, id)
				continue
			}
			late[c] = append(late[c], id)
		}
	}
	for id := range wanted {
		cur, ok := s.items[id]
		if !ok {
			continue
		}
		if _, captured := sl.Containers[cur.ContainerID]; captured {
			continue
		}
		idx := indexOf(s.order[cur.ContainerID], id)
		s.order[cur.ContainerID] = removeAt(s.order[cur.ContainerID], idx)
	}
	for c, seq := range sl.Containers {
		ids := make([]string, 0, len(seq)+len(late[c]))
		for _, it := range seq {
			it.ContainerID = c
			s.items[it.ID] = it
			ids = append(ids, it.ID)
		}
		s.order[c] = append(ids, late[c]...)
	}
	s.rev++
}

// Check verifies that every item sits in exactly one container and that the
// arena and the container sequences agree.
func (s *Store) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]string, len(s.items))
	for c, ids := range s.order {
		for _, id := range ids {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("item %s appears in %s and %s", id, prev, c)
			}
			seen[id] = c
			it, ok := s.items[id]
			if !ok {
				return fmt.Errorf("item %s in %s is missing from the arena", id, c)
			}
			if it.ContainerID != c {
				return fmt.Errorf("item %s records container %s but sits in %s", id, it.ContainerID, c)
			}
		}
	}
	if len(seen) != len(s.items) {
		return fmt.Errorf("arena holds %d items, containers hold %d", len(s.items), len(seen))
	}
	return nil
}

// Contiguous reports whether every container of b has positions 0..n-1.
func Contiguous(b domain.Board) bool {
	for c, seq := range b {
		for i, it := range seq {
			if it.Position != i || it.ContainerID != c {
				return false
			}
		}
	}
	return true
}

func (s *Store) containerLocked(c string) []domain.Item {
	ids := s.order[c]
	out := make([]domain.Item, len(ids))
	for i, id := range ids {
		it := s.items[id]
		it.ContainerID = c
		it.Position = i
		out[i] = it
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, cur := range ids {
		if cur == id {
			return i
		}
	}
	return -1
}

func removeAt(ids []string, idx int) []string {
	if idx < 0 || idx >= len(ids) {
		return ids
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:idx]...)
	return append(out, ids[idx+1:]...)
}

func insertAt(ids []string, idx int, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:idx]...)
	out = append(out, id)
	return append(out, ids[idx:]...)
}
