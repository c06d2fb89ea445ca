package debounce

import (
	"testing"
	"time"

	"github.com/crypticpy/Grantscope-2-sub004/clock"
)

func TestTryAcceptBoundary(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	c := clock.NewFake(start)
	d := New(c, 0)
	if !d.TryAccept("x") {
		t.Fatal("first call must be accepted")
	}
	c.Advance(299 * time.Millisecond)
	if d.TryAccept("x") {
		t.Fatal("call 299ms later must be rejected")
	}

	c = clock.NewFake(start)
	d = New(c, 0)
	d.TryAccept("x")
	c.Advance(301 * time.Millisecond)
	if !d.TryAccept("x") {
		t.Fatal("call 301ms later must be accepted")
	}
}

func TestRejectedCallsDoNotExtendWindow(t *testing.T) {
	c := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	d := New(c, 0)
	d.TryAccept("x")
	c.Advance(200 * time.Millisecond)
	if d.TryAccept("x") {
		t.Fatal("expected rejection inside window")
	}
	c.Advance(101 * time.Millisecond)
	if !d.TryAccept("x") {
		t.Fatal("window must be measured from the last accepted call")
	}
}

func TestGatesAreIndependent(t *testing.T) {
	c := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	d := New(c, 0)
	if !d.TryAccept(GateReview) || !d.TryAccept(GateUndo) {
		t.Fatal("distinct gates must not block each other")
	}
	if d.TryAccept(GateReview) {
		t.Fatal("same gate must be debounced")
	}
}
