package api

import (
	"context"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

// Storage abstracts persistence for handlers and job workers.
type Storage interface {
	Ping(ctx context.Context) error
	FetchItems(ctx context.Context, userID string) ([]domain.Item, error)
	ApplyMutation(ctx context.Context, userID string, m domain.Mutation) error
	CreateJob(ctx context.Context, userID, kind, itemID string) (domain.JobSnapshot, error)
	GetJob(ctx context.Context, userID, jobID string) (domain.JobSnapshot, error)
	UpdateJob(ctx context.Context, userID string, snap domain.JobSnapshot) error
	SaveResult(ctx context.Context, userID, jobID string, doc []byte) error
	FetchResult(ctx context.Context, userID, jobID string) ([]byte, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// AddMany records the keys and reports which ones were newly added.
	AddMany(ctx context.Context, userID string, keys []string) ([]bool, error)
	// Remove deletes a previously added key, used when applying the command fails.
	Remove(ctx context.Context, userID, key string) error
	// Release removes every key AddMany newly added.
	Release(ctx context.Context, userID string, keys []string, added []bool) error
}
