package board

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

func item(id, c string, pos int) domain.Item {
	return domain.Item{ID: id, Title: "card " + id, ContainerID: c, Position: pos}
}

func newInboxStore(t *testing.T) *Store {
	t.Helper()
	s := New(domain.ContainerInbox, domain.ContainerResearch)
	s.Load([]domain.Item{
		item("A", domain.ContainerInbox, 0),
		item("B", domain.ContainerInbox, 1),
	})
	return s
}

func mustCheck(t *testing.T, s *Store) {
	t.Helper()
	if err := s.Check(); err != nil {
		t.Fatalf("store invariant broken: %v", err)
	}
	if !Contiguous(s.Snapshot()) {
		t.Fatalf("positions not contiguous: %#v", s.Snapshot())
	}
}

func TestLoadRenumbersDensely(t *testing.T) {
	s := New()
	s.Load([]domain.Item{
		item("c", "x", 7),
		item("a", "x", 2),
		item("b", "x", 2),
	})
	got := s.Container("x")
	want := []domain.Item{item("a", "x", 0), item("b", "x", 1), item("c", "x", 2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	mustCheck(t, s)
}

func TestMoveAcrossContainers(t *testing.T) {
	s := newInboxStore(t)

	before, err := s.Move("A", domain.ContainerResearch, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if before.ContainerID != domain.ContainerInbox || before.Position != 0 {
		t.Fatalf("unexpected before state: %+v", before)
	}

	want := domain.Board{
		domain.ContainerInbox:    {item("B", domain.ContainerInbox, 0)},
		domain.ContainerResearch: {item("A", domain.ContainerResearch, 0)},
	}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Fatalf("unexpected board (-want +got):\n%s", diff)
	}
	mustCheck(t, s)
}

func TestMoveWithinContainer(t *testing.T) {
	s := New()
	s.Load([]domain.Item{item("a", "x", 0), item("b", "x", 1), item("c", "x", 2), item("d", "x", 3)})

	if _, err := s.Move("a", "x", 3); err != nil {
		t.Fatalf("move down: %v", err)
	}
	ids := func() []string {
		var out []string
		for _, it := range s.Container("x") {
			out = append(out, it.ID)
		}
		return out
	}
	if diff := cmp.Diff([]string{"b", "c", "d", "a"}, ids()); diff != "" {
		t.Fatalf("unexpected order after move down:\n%s", diff)
	}
	mustCheck(t, s)

	if _, err := s.Move("d", "x", 0); err != nil {
		t.Fatalf("move up: %v", err)
	}
	if diff := cmp.Diff([]string{"d", "b", "c", "a"}, ids()); diff != "" {
		t.Fatalf("unexpected order after move up:\n%s", diff)
	}

	if _, err := s.Move("b", "x", 1); err != nil {
		t.Fatalf("move in place: %v", err)
	}
	if diff := cmp.Diff([]string{"d", "b", "c", "a"}, ids()); diff != "" {
		t.Fatalf("unexpected order after no-op move:\n%s", diff)
	}
	mustCheck(t, s)
}

func TestMoveRejectsInvalidTargets(t *testing.T) {
	s := newInboxStore(t)
	rev := s.Revision()

	if _, err := s.Move("missing", domain.ContainerResearch, 0); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := s.Move("A", domain.ContainerInbox, 2); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition within container, got %v", err)
	}
	if _, err := s.Move("A", domain.ContainerResearch, 1); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition across containers, got %v", err)
	}
	if _, err := s.Move("A", "archive", 0); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition for unknown container, got %v", err)
	}
	if s.Revision() != rev {
		t.Fatal("failed moves must not change the board")
	}
}

func TestRestoreIsExact(t *testing.T) {
	s := newInboxStore(t)
	original := s.Snapshot()
	sl := s.Capture(domain.ContainerInbox, domain.ContainerResearch)

	if _, err := s.Move("A", domain.ContainerResearch, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	s.Restore(sl)

	if diff := cmp.Diff(original, s.Snapshot()); diff != "" {
		t.Fatalf("restore not exact (-want +got):\n%s", diff)
	}
	mustCheck(t, s)
}

func TestRestorePullsItemsBackFromOtherContainers(t *testing.T) {
	s := New(domain.ContainerInbox, domain.ContainerResearch, domain.ContainerReview)
	s.Load([]domain.Item{item("A", domain.ContainerInbox, 0), item("B", domain.ContainerInbox, 1)})
	sl := s.Capture(domain.ContainerInbox, domain.ContainerResearch)

	if _, err := s.Move("A", domain.ContainerResearch, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := s.Move("A", domain.ContainerReview, 0); err != nil {
		t.Fatalf("second move: %v", err)
	}
	s.Restore(sl)

	if got := s.Container(domain.ContainerReview); len(got) != 0 {
		t.Fatalf("expected review to be empty after restore, got %#v", got)
	}
	if got := s.Container(domain.ContainerInbox); len(got) != 2 || got[0].ID != "A" {
		t.Fatalf("unexpected inbox after restore: %#v", got)
	}
	mustCheck(t, s)
}

func TestRemoveAndInsert(t *testing.T) {
	s := newInboxStore(t)

	removed, err := s.Remove("A")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Position != 0 {
		t.Fatalf("expected removed position 0, got %d", removed.Position)
	}
	mustCheck(t, s)

	got := s.Insert(removed, domain.ContainerInbox, 10)
	if got.Position != 1 {
		t.Fatalf("expected clamped position 1, got %d", got.Position)
	}
	s.Insert(removed, domain.ContainerInbox, 0)
	inbox := s.Container(domain.ContainerInbox)
	if len(inbox) != 2 || inbox[0].ID != "A" || inbox[1].ID != "B" {
		t.Fatalf("re-insert duplicated or misplaced item: %#v", inbox)
	}
	mustCheck(t, s)
}

func TestRestoreKeepsItemsThatArrivedLater(t *testing.T) {
	s := New(domain.ContainerInbox, domain.ContainerResearch, domain.ContainerReview)
	s.Load([]domain.Item{item("A", domain.ContainerInbox, 0), item("C", domain.ContainerReview, 0)})
	sl := s.Capture(domain.ContainerInbox, domain.ContainerResearch)

	if _, err := s.Move("A", domain.ContainerResearch, 0); err != nil {
		t.Fatalf("move A: %v", err)
	}
	if _, err := s.Move("C", domain.ContainerResearch, 1); err != nil {
		t.Fatalf("move C: %v", err)
	}
	s.Restore(sl, "A")

	if got := s.Container(domain.ContainerInbox); len(got) != 1 || got[0].ID != "A" {
		t.Fatalf("expected A back in inbox, got %#v", got)
	}
	got := s.Container(domain.ContainerResearch)
	if len(got) != 1 || got[0].ID != "C" || got[0].Position != 0 {
		t.Fatalf("expected C to stay in research at 0, got %#v", got)
	}
	mustCheck(t, s)
}

func TestRestoreDropsListedNewcomers(t *testing.T) {
	s := newInboxStore(t)
	sl := s.Capture(domain.ContainerInbox)

	s.Insert(item("Z", domain.ContainerInbox, 0), domain.ContainerInbox, 0)
	s.Restore(sl, "Z")

	if _, ok := s.Get("Z"); ok {
		t.Fatal("dropped item must leave the board")
	}
	if diff := cmp.Diff(sl.Containers[domain.ContainerInbox], s.Container(domain.ContainerInbox)); diff != "" {
		t.Fatalf("inbox not restored (-want +got):\n%s", diff)
	}
	mustCheck(t, s)
}
