// Package storage persists boards and jobs of the reference board service
// in Redis.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/crypticpy/Grantscope-2-sub004/board"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

var (
	// ErrNotFound is returned for unknown jobs and missing results.
	ErrNotFound = errors.New("not found")
	// ErrConflict wraps board validation errors raised while applying a
	// mutation on the server copy.
	ErrConflict = errors.New("conflict")
)

const (
	defaultJobTTL    = 24 * time.Hour
	maxApplyAttempts = 5
)

// Containers lists the containers every board starts with.
var Containers = []string{
	domain.ContainerInbox,
	domain.ContainerResearch,
	domain.ContainerReview,
	domain.ContainerApproved,
	domain.ContainerDismissed,
}

// Store keeps one board document per user and one document per job.
type Store struct {
	redis  *redis.Client
	jobTTL time.Duration
	now    func() time.Time
}

// New creates a store over client. A non-positive ttl uses one day.
func New(client *redis.Client, jobTTL time.Duration) *Store {
	if client == nil {
		panic("storage.New: redis client is nil")
	}
	if jobTTL <= 0 {
		jobTTL = defaultJobTTL
	}
	return &Store{redis: client, jobTTL: jobTTL, now: time.Now}
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// FetchItems returns the board of userID ordered by container and position.
func (s *Store) FetchItems(ctx context.Context, userID string) ([]domain.Item, error) {
	items, err := s.loadItems(ctx, s.redis, userID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SeedItems replaces the board of userID.
func (s *Store) SeedItems(ctx context.Context, userID string, items []domain.Item) error {
	b := board.New(Containers...)
	b.Load(items)
	data, err := sonic.Marshal(flatten(b))
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, boardKey(userID), data, 0).Err()
}

// ApplyMutation applies m to the board of userID atomically. Concurrent
// writers are serialised with WATCH; the losing writer retries on the new
// state. Board validation errors are wrapped in ErrConflict.
func (s *Store) ApplyMutation(ctx context.Context, userID string, m domain.Mutation) error {
	key := boardKey(userID)
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			items, err := s.loadItems(ctx, tx, userID)
			if err != nil {
				return err
			}
			b := board.New(Containers...)
			b.Load(items)
			if err := apply(b, m); err != nil {
				return fmt.Errorf("%w: %w", ErrConflict, err)
			}
			data, err := sonic.Marshal(flatten(b))
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("apply %s on board of %s: too many concurrent writers", m.Kind, userID)
}

func apply(b *board.Store, m domain.Mutation) error {
	switch m.Kind {
	case domain.MutationMove:
		_, err := b.Move(m.ItemID, m.ToContainer, m.ToPosition)
		return err
	case domain.MutationRemove:
		_, err := b.Remove(m.ItemID)
		return err
	case domain.MutationRestore:
		if m.Item == nil {
			return fmt.Errorf("restore %s: missing item", m.ItemID)
		}
		item := *m.Item
		item.ID = m.ItemID
		b.Insert(item, m.ToContainer, m.ToPosition)
		return nil
	}
	return fmt.Errorf("unsupported mutation %q", m.Kind)
}

// CreateJob records a queued job for userID.
func (s *Store) CreateJob(ctx context.Context, userID, kind, itemID string) (domain.JobSnapshot, error) {
	now := s.now().UTC()
	snap := domain.JobSnapshot{
		JobID:     uuid.NewString(),
		Kind:      kind,
		ItemID:    itemID,
		Status:    domain.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.saveJob(ctx, userID, snap); err != nil {
		return domain.JobSnapshot{}, err
	}
	return snap, nil
}

// GetJob returns a job of userID.
func (s *Store) GetJob(ctx context.Context, userID, jobID string) (domain.JobSnapshot, error) {
	data, err := s.redis.Get(ctx, jobKey(userID, jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.JobSnapshot{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return domain.JobSnapshot{}, err
	}
	var snap domain.JobSnapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		_ = s.redis.Del(ctx, jobKey(userID, jobID)).Err()
		return domain.JobSnapshot{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return snap, nil
}

// UpdateJob stores a new status for an existing job. The stored snapshot
// carries a short result summary; the full document is saved separately.
func (s *Store) UpdateJob(ctx context.Context, userID string, snap domain.JobSnapshot) error {
	snap.UpdatedAt = s.now().UTC()
	return s.saveJob(ctx, userID, snap)
}

// SaveResult stores the full result document of a job.
func (s *Store) SaveResult(ctx context.Context, userID, jobID string, doc []byte) error {
	return s.redis.Set(ctx, resultKey(userID, jobID), doc, s.jobTTL).Err()
}

// FetchResult returns the full result document of a job.
func (s *Store) FetchResult(ctx context.Context, userID, jobID string) ([]byte, error) {
	data, err := s.redis.Get(ctx, resultKey(userID, jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("result of job %s: %w", jobID, ErrNotFound)
	}
	return data, err
}

func (s *Store) saveJob(ctx context.Context, userID string, snap domain.JobSnapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(userID, snap.JobID), data, s.jobTTL).Err()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) loadItems(ctx context.Context, r getter, userID string) ([]domain.Item, error) {
	data, err := r.Get(ctx, boardKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.Item{}, nil
	}
	if err != nil {
		return nil, err
	}
	var items []domain.Item
	if err := sonic.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode board of %s: %w", userID, err)
	}
	return items, nil
}

func flatten(b *board.Store) []domain.Item {
	out := make([]domain.Item, 0)
	for _, c := range b.Containers() {
		out = append(out, b.Container(c)...)
	}
	return out
}

func boardKey(userID string) string {
	return "board:" + userID
}

func jobKey(userID, jobID string) string {
	return "job:" + userID + ":" + jobID
}

func resultKey(userID, jobID string) string {
	return "job-result:" + userID + ":" + jobID
}
