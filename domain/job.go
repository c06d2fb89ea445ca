package domain

import (
	"time"

	"github.com/bytedance/sonic"
)

// JobStatus is the server-side state of an asynchronous job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether polling stops at this status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job kinds started from board actions.
const (
	JobKindBrief = "brief"
	JobKindScan  = "scan"
)

// JobSnapshot is one observation of a server-side job.
type JobSnapshot struct {
	JobID  string                 `json:"jobId"`
	Kind   string                 `json:"kind,omitempty"`
	ItemID string                 `json:"itemId,omitempty"`
	Status JobStatus              `json:"status"`
	Result sonic.NoCopyRawMessage `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// UndoRecord is a confirmed, reversible action. Item holds the container and
// position the item had when the action was taken.
type UndoRecord struct {
	Type      string    `json:"type"`
	Item      Item      `json:"item"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}
