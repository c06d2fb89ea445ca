package navigation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/debounce"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

type harness struct {
	clock     *clock.Fake
	ctrl      *Controller
	primary   []string
	secondary []string
	undos     int
	scrolled  []int
}

func newHarness(t *testing.T, ids ...string) *harness {
	t.Helper()
	h := &harness{clock: clock.NewFake(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))}
	h.ctrl = New(debounce.New(h.clock, debounce.DefaultThreshold), Actions{
		Primary:        func(it domain.Item) { h.primary = append(h.primary, it.ID) },
		Secondary:      func(it domain.Item) { h.secondary = append(h.secondary, it.ID) },
		Undo:           func() { h.undos++ },
		ScrollIntoView: func(idx int, _ domain.Item) { h.scrolled = append(h.scrolled, idx) },
	}, Options{})
	h.ctrl.SetItems(items(ids...))
	return h
}

func items(ids ...string) []domain.Item {
	out := make([]domain.Item, len(ids))
	for i, id := range ids {
		out[i] = domain.Item{ID: id, ContainerID: domain.ContainerReview, Position: i}
	}
	return out
}

func TestNextPreviousWrap(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	if h.ctrl.FocusedIndex() != 0 {
		t.Fatalf("expected focus on first item, got %d", h.ctrl.FocusedIndex())
	}

	h.ctrl.Next()
	h.ctrl.Next()
	h.ctrl.Next()
	if h.ctrl.FocusedIndex() != 0 {
		t.Fatalf("next past the end should wrap to 0, got %d", h.ctrl.FocusedIndex())
	}
	h.ctrl.Previous()
	if h.ctrl.FocusedIndex() != 2 {
		t.Fatalf("previous before the start should wrap to the end, got %d", h.ctrl.FocusedIndex())
	}
	if diff := cmp.Diff([]int{1, 2, 0, 2}, h.scrolled); diff != "" {
		t.Fatalf("every focus change should scroll (-want +got):\n%s", diff)
	}
}

func TestSetItemsSnapsFocus(t *testing.T) {
	h := newHarness(t, "a", "b", "c", "d")
	h.ctrl.Previous()
	if h.ctrl.FocusedIndex() != 3 {
		t.Fatalf("expected focus 3, got %d", h.ctrl.FocusedIndex())
	}

	h.ctrl.SetItems(items("a", "b"))
	if h.ctrl.FocusedIndex() != 1 {
		t.Fatalf("expected focus snapped to last index, got %d", h.ctrl.FocusedIndex())
	}
	h.ctrl.SetItems(nil)
	if h.ctrl.FocusedIndex() != -1 {
		t.Fatalf("expected no focus for an empty list, got %d", h.ctrl.FocusedIndex())
	}
	if h.ctrl.Next() || h.ctrl.DispatchPrimary() {
		t.Fatal("nothing should happen without items")
	}
	h.ctrl.SetItems(items("z"))
	if it, ok := h.ctrl.Focused(); !ok || it.ID != "z" {
		t.Fatalf("expected focus on z, got %+v %v", it, ok)
	}
}

func TestDispatchIsDebounced(t *testing.T) {
	h := newHarness(t, "a", "b")

	if !h.ctrl.DispatchPrimary() {
		t.Fatal("first dispatch should run")
	}
	h.clock.Advance(299 * time.Millisecond)
	if h.ctrl.DispatchPrimary() || h.ctrl.DispatchSecondary() {
		t.Fatal("a second action inside the window must be dropped")
	}
	h.clock.Advance(2 * time.Millisecond)
	if !h.ctrl.DispatchSecondary() {
		t.Fatal("an action 301ms after the last accepted one should run")
	}
	if diff := cmp.Diff([]string{"a"}, h.primary); diff != "" {
		t.Fatalf("unexpected primary calls:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, h.secondary); diff != "" {
		t.Fatalf("unexpected secondary calls:\n%s", diff)
	}
}

func TestUndoHasItsOwnGate(t *testing.T) {
	h := newHarness(t, "a")
	h.ctrl.DispatchPrimary()
	if !h.ctrl.DispatchUndo() {
		t.Fatal("undo should not share the review gate")
	}
	if h.ctrl.DispatchUndo() {
		t.Fatal("a repeated undo inside the window must be dropped")
	}
	if h.undos != 1 {
		t.Fatalf("expected one undo, got %d", h.undos)
	}
}

func TestHandleKeyDefaultBindings(t *testing.T) {
	h := newHarness(t, "a", "b", "c")

	for _, k := range []string{"j", "down", "right"} {
		if !h.ctrl.HandleKey(k) {
			t.Fatalf("%q should be bound", k)
		}
	}
	if h.ctrl.FocusedIndex() != 0 {
		t.Fatalf("three nexts over three items should wrap to 0, got %d", h.ctrl.FocusedIndex())
	}
	h.ctrl.HandleKey("k")
	h.ctrl.HandleKey("enter")
	h.clock.Advance(time.Second)
	h.ctrl.HandleKey("up")
	h.ctrl.HandleKey("x")
	h.clock.Advance(time.Second)
	h.ctrl.HandleKey("u")

	if diff := cmp.Diff([]string{"c"}, h.primary); diff != "" {
		t.Fatalf("unexpected primary calls:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b"}, h.secondary); diff != "" {
		t.Fatalf("unexpected secondary calls:\n%s", diff)
	}
	if h.undos != 1 {
		t.Fatalf("expected one undo, got %d", h.undos)
	}
	if h.ctrl.HandleKey("q") {
		t.Fatal("q is not bound")
	}
}

func TestHandleDragSwipeVersusTap(t *testing.T) {
	tests := []struct {
		name    string
		drag    Drag
		gesture Gesture
		ran     bool
	}{
		{"tap", Drag{OffsetX: 40, VelocityX: 120}, GestureTap, false},
		{"tap just under both thresholds", Drag{OffsetX: -99, VelocityX: -499}, GestureTap, false},
		{"long right drag", Drag{OffsetX: 150, VelocityX: 10}, GestureSwipeRight, true},
		{"fast left flick", Drag{OffsetX: -20, VelocityX: -800}, GestureSwipeLeft, true},
		{"offset left wins over velocity", Drag{OffsetX: -120, VelocityX: 600}, GestureSwipeLeft, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "a")
			g, ran := h.ctrl.HandleDrag(tc.drag)
			if g != tc.gesture || ran != tc.ran {
				t.Fatalf("got %s ran=%v, want %s ran=%v", g, ran, tc.gesture, tc.ran)
			}
			total := len(h.primary) + len(h.secondary)
			if !tc.ran && total != 0 {
				t.Fatal("a tap must not trigger any action")
			}
		})
	}
}

func TestParseKeymap(t *testing.T) {
	km, err := ParseKeymap(map[string]string{"l": "next", "right": "", "y": "Primary"})
	if err != nil {
		t.Fatal(err)
	}
	if km["l"] != CmdNext || km["y"] != CmdPrimary {
		t.Fatalf("overrides not applied: %v", km)
	}
	if _, ok := km["right"]; ok {
		t.Fatal("empty command should unbind the key")
	}
	if diff := cmp.Diff([]string{"down", "j", "l"}, km.Keys(CmdNext)); diff != "" {
		t.Fatalf("unexpected next keys:\n%s", diff)
	}
	if _, err := ParseKeymap(map[string]string{"z": "explode"}); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestCustomThresholds(t *testing.T) {
	c := New(debounce.New(clock.NewFake(time.Unix(0, 0)), 0), Actions{}, Options{Thresholds: Thresholds{Offset: 10, Velocity: 50}})
	if g := c.Classify(Drag{OffsetX: 12}); g != GestureSwipeRight {
		t.Fatalf("expected swipe with a lower offset threshold, got %s", g)
	}
	if _, ran := c.HandleDrag(Drag{OffsetX: 12}); ran {
		t.Fatal("no items and no actions means nothing runs")
	}
}
