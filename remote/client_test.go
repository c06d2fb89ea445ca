package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/crypticpy/Grantscope-2-sub004/api"
	"github.com/crypticpy/Grantscope-2-sub004/board"
	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
	"github.com/crypticpy/Grantscope-2-sub004/optimistic"
	"github.com/crypticpy/Grantscope-2-sub004/poller"
	"github.com/crypticpy/Grantscope-2-sub004/storage"
	"github.com/crypticpy/Grantscope-2-sub004/undo"
)

var devSecret = []byte("remote-test-secret")

const user = "user-1"

type service struct {
	srv   *httptest.Server
	store *storage.Store
}

func newService(t *testing.T, items ...domain.Item) *service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	logger, _ := test.NewNullLogger()
	auth, err := api.NewTestAuth(devSecret)
	if err != nil {
		t.Fatal(err)
	}
	store := storage.New(rc, time.Hour)
	if len(items) > 0 {
		if err := store.SeedItems(context.Background(), user, items); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	pool := api.NewPool(store, logger, api.PoolConfig{Workers: 1, Step: 5 * time.Millisecond})
	t.Cleanup(pool.Close)

	e := echo.New()
	api.Register(e, api.Deps{Store: store, Auth: auth, Deduper: api.NewRedisDeduper(rc, time.Hour), Jobs: pool, Logger: logger})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &service{srv: srv, store: store}
}

func (s *service) client(t *testing.T) *Client {
	t.Helper()
	token, err := DevToken(user, devSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return New(s.srv.URL+"/", token, 5*time.Second)
}

func card(id, container string, pos int) domain.Item {
	return domain.Item{ID: id, Title: "card " + id, ContainerID: container, Position: pos}
}

func TestFetchBoard(t *testing.T) {
	svc := newService(t, card("A", domain.ContainerInbox, 0), card("B", domain.ContainerResearch, 0))
	items, err := svc.client(t).FetchBoard(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestPerformMutationAppliesOnce(t *testing.T) {
	svc := newService(t, card("A", domain.ContainerInbox, 0), card("B", domain.ContainerInbox, 1))
	c := svc.client(t)
	ctx := context.Background()

	m := domain.Mutation{Kind: domain.MutationRemove, ItemID: "A", IdempotencyKey: "remove-a"}
	if err := c.PerformMutation(ctx, m); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if err := c.PerformMutation(ctx, m); err != nil {
		t.Fatalf("a retried command must be acknowledged: %v", err)
	}
	items, _ := svc.store.FetchItems(ctx, user)
	if len(items) != 1 || items[0].ID != "B" || items[0].Position != 0 {
		t.Fatalf("unexpected board %+v", items)
	}
}

func TestPerformMutationGeneratesKey(t *testing.T) {
	svc := newService(t, card("A", domain.ContainerInbox, 0))
	c := svc.client(t)
	var generated int
	c.NewKey = func() string {
		generated++
		return "generated-key"
	}
	err := c.PerformMutation(context.Background(), domain.Mutation{Kind: domain.MutationMove, ItemID: "A", ToContainer: domain.ContainerReview})
	if err != nil {
		t.Fatal(err)
	}
	if generated != 1 {
		t.Fatalf("expected one generated key, got %d", generated)
	}
}

func TestPerformMutationRejectedCarriesServerMessage(t *testing.T) {
	svc := newService(t, card("A", domain.ContainerInbox, 0))
	err := svc.client(t).PerformMutation(context.Background(), domain.Mutation{
		Kind: domain.MutationMove, ItemID: "A", ToContainer: domain.ContainerResearch, ToPosition: 7,
	})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", se.Code)
	}
	if !strings.Contains(se.Error(), "invalid position") {
		t.Fatalf("expected the server message, got %q", se.Error())
	}
}

func TestUnauthorized(t *testing.T) {
	svc := newService(t)
	c := svc.client(t)
	c.Bearer = "not-a-jwt"
	_, err := c.FetchBoard(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if se.Body != "bad auth header" {
		t.Fatalf("unexpected body %q", se.Body)
	}
}

func TestTransportFailureIsNotStatusError(t *testing.T) {
	svc := newService(t)
	c := svc.client(t)
	svc.srv.Close()
	_, err := c.PollJobStatus(context.Background(), "job")
	if err == nil {
		t.Fatal("expected an error")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Fatalf("transport failure reported as status %d", se.Code)
	}
}

func TestJobRunsThroughPoller(t *testing.T) {
	svc := newService(t, card("A", domain.ContainerInbox, 0), card("B", domain.ContainerReview, 0))
	c := svc.client(t)
	ctx := context.Background()

	acc, err := c.StartJob(ctx, domain.JobKindScan, "")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	if acc.Status != domain.JobQueued {
		t.Fatalf("unexpected status %s", acc.Status)
	}

	logger, _ := test.NewNullLogger()
	p := poller.New(c, clock.Real(), logger)
	defer p.StopAll()
	done := make(chan domain.JobSnapshot, 1)
	failed := make(chan error, 1)
	p.Start(acc.JobID, poller.Options{
		Interval:    10 * time.Millisecond,
		MaxAttempts: 200,
		Finalize:    c.Finalize,
		OnCompleted: func(s domain.JobSnapshot) { done <- s },
		OnFailed:    func(err error) { failed <- err },
		OnTimeout:   func() { failed <- errors.New("timed out") },
	})

	select {
	case snap := <-done:
		if !strings.Contains(string(snap.Result), `"total":2`) {
			t.Fatalf("expected the full scan document, got %s", snap.Result)
		}
	case err := <-failed:
		t.Fatalf("job did not complete: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("job never settled")
	}
}

func TestUnknownJobIsStatusError(t *testing.T) {
	svc := newService(t)
	_, err := svc.client(t).PollJobStatus(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestControllerAgainstService(t *testing.T) {
	svc := newService(t, card("A", domain.ContainerInbox, 0), card("B", domain.ContainerInbox, 1))
	c := svc.client(t)
	ctx := context.Background()

	items, err := c.FetchBoard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	store := board.New(storage.Containers...)
	ctrl := optimistic.New(store, c, undo.New(clock.Real(), 0), optimistic.Options{})
	defer ctrl.Close()
	ctrl.Load(items)

	p, err := ctrl.Apply(ctx, domain.Mutation{Kind: domain.MutationMove, ItemID: "B", ToContainer: domain.ContainerResearch})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("move rejected: %v", err)
	}
	remoteItems, _ := svc.store.FetchItems(ctx, user)
	moved := false
	for _, it := range remoteItems {
		if it.ID == "B" && it.ContainerID == domain.ContainerResearch {
			moved = true
		}
	}
	if !moved {
		t.Fatalf("move not persisted: %+v", remoteItems)
	}

	// A card the service never had is rejected and the local move undone.
	ctrl.Load(append(items, card("ghost", domain.ContainerInbox, 2)))
	before := store.Snapshot()
	p, err = ctrl.Apply(ctx, domain.Mutation{Kind: domain.MutationMove, ItemID: "ghost", ToContainer: domain.ContainerReview})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(ctx); err == nil {
		t.Fatal("expected the service to reject the move")
	}
	if after := store.Snapshot(); len(after[domain.ContainerReview]) != 0 || len(after[domain.ContainerInbox]) != len(before[domain.ContainerInbox]) {
		t.Fatalf("local board not rolled back: %+v", after)
	}
}

func TestDevToken(t *testing.T) {
	if _, err := DevToken(user, nil, time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	token, err := DevToken(user, devSecret, 0)
	if err != nil {
		t.Fatal(err)
	}
	auth, err := api.NewTestAuth(devSecret)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := auth.UserIDFromBearer(token)
	if err != nil || sub != user {
		t.Fatalf("token not accepted: %q, %v", sub, err)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	tests := []struct {
		err  StatusError
		want string
	}{
		{StatusError{Code: 409, Body: "{}", Message: "invalid position"}, "invalid position"},
		{StatusError{Code: 503, Body: "down"}, "board service returned 503: down"},
		{StatusError{Code: 500}, "board service returned 500"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
