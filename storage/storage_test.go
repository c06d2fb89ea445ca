package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/crypticpy/Grantscope-2-sub004/board"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Hour), mr
}

func item(id, container string, pos int) domain.Item {
	return domain.Item{ID: id, Title: "card " + id, ContainerID: container, Position: pos}
}

func TestFetchItemsEmptyBoard(t *testing.T) {
	s, _ := newTestStore(t)
	items, err := s.FetchItems(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected an empty, non-nil board, got %#v", items)
	}
}

func TestSeedRenumbersAndFetchOrders(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.SeedItems(ctx, "u1", []domain.Item{
		item("b", domain.ContainerInbox, 5),
		item("a", domain.ContainerInbox, 1),
		item("r", domain.ContainerResearch, 9),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := s.FetchItems(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Item{
		item("a", domain.ContainerInbox, 0),
		item("b", domain.ContainerInbox, 1),
		item("r", domain.ContainerResearch, 0),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
}

func TestApplyMutationMoveRemoveRestore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.SeedItems(ctx, "u1", []domain.Item{item("A", domain.ContainerInbox, 0), item("B", domain.ContainerInbox, 1)}); err != nil {
		t.Fatal(err)
	}

	if err := s.ApplyMutation(ctx, "u1", domain.Mutation{Kind: domain.MutationMove, ItemID: "A", ToContainer: domain.ContainerResearch}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := s.ApplyMutation(ctx, "u1", domain.Mutation{Kind: domain.MutationRemove, ItemID: "B"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	restored := item("B", domain.ContainerInbox, 0)
	if err := s.ApplyMutation(ctx, "u1", domain.Mutation{Kind: domain.MutationRestore, ItemID: "B", ToContainer: domain.ContainerInbox, Item: &restored}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, _ := s.FetchItems(ctx, "u1")
	want := []domain.Item{item("B", domain.ContainerInbox, 0), item("A", domain.ContainerResearch, 0)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
}

func TestApplyMutationConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.SeedItems(ctx, "u1", []domain.Item{item("A", domain.ContainerInbox, 0)}); err != nil {
		t.Fatal(err)
	}

	err := s.ApplyMutation(ctx, "u1", domain.Mutation{Kind: domain.MutationMove, ItemID: "A", ToContainer: domain.ContainerResearch, ToPosition: 3})
	if !errors.Is(err, ErrConflict) || !errors.Is(err, board.ErrInvalidPosition) {
		t.Fatalf("expected conflict wrapping ErrInvalidPosition, got %v", err)
	}
	err = s.ApplyMutation(ctx, "u1", domain.Mutation{Kind: domain.MutationRemove, ItemID: "ghost"})
	if !errors.Is(err, ErrConflict) || !errors.Is(err, board.ErrItemNotFound) {
		t.Fatalf("expected conflict wrapping ErrItemNotFound, got %v", err)
	}
}

func TestApplyMutationConcurrentWritersKeepBoardConsistent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	seed := []domain.Item{
		item("a", domain.ContainerInbox, 0),
		item("b", domain.ContainerInbox, 1),
		item("c", domain.ContainerInbox, 2),
		item("d", domain.ContainerInbox, 3),
	}
	if err := s.SeedItems(ctx, "u1", seed); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.ApplyMutation(ctx, "u1", domain.Mutation{Kind: domain.MutationMove, ItemID: id, ToContainer: domain.ContainerResearch}); err != nil {
				t.Errorf("move %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	items, _ := s.FetchItems(ctx, "u1")
	b := board.New(Containers...)
	b.Load(items)
	if err := b.Check(); err != nil {
		t.Fatal(err)
	}
	if len(b.Container(domain.ContainerResearch)) != 4 || !board.Contiguous(b.Snapshot()) {
		t.Fatalf("expected all four cards in research, got %#v", b.Snapshot())
	}
}

func TestJobLifecycle(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	snap, err := s.CreateJob(ctx, "u1", domain.JobKindBrief, "A")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if snap.JobID == "" || snap.Status != domain.JobQueued || !snap.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if ttl := mr.TTL(jobKey("u1", snap.JobID)); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected job TTL %v", ttl)
	}

	snap.Status = domain.JobCompleted
	if err := s.UpdateJob(ctx, "u1", snap); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveResult(ctx, "u1", snap.JobID, []byte(`{"brief":"text"}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetJob(ctx, "u1", snap.JobID)
	if err != nil || got.Status != domain.JobCompleted {
		t.Fatalf("unexpected job %+v err=%v", got, err)
	}
	doc, err := s.FetchResult(ctx, "u1", snap.JobID)
	if err != nil || string(doc) != `{"brief":"text"}` {
		t.Fatalf("unexpected result %s err=%v", doc, err)
	}

	if _, err := s.GetJob(ctx, "u2", snap.JobID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("jobs are scoped per user, got %v", err)
	}
	if _, err := s.FetchResult(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetJobDropsCorruptDocument(t *testing.T) {
	s, mr := newTestStore(t)
	if err := mr.Set(jobKey("u1", "bad"), "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetJob(context.Background(), "u1", "bad"); err == nil {
		t.Fatal("expected decode error")
	}
	if mr.Exists(jobKey("u1", "bad")) {
		t.Fatal("corrupt job document should be deleted")
	}
}
