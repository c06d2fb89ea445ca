package domain

// Outcome of one command in a POST /api/commands batch.
const (
	CommandApplied   = "applied"
	CommandDuplicate = "duplicate"
	CommandRejected  = "rejected"
)

// CommandResult reports what the board service did with one command.
type CommandResult struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// CommandsResponse is the body of POST /api/commands.
type CommandsResponse struct {
	Results []CommandResult `json:"results"`
	Error   string          `json:"error,omitempty"`
}

// TasksResponse is the body of GET /api/tasks.
type TasksResponse struct {
	Tasks []Item `json:"tasks"`
}

// JobRequest is the body of POST /api/jobs.
type JobRequest struct {
	Kind   string `json:"kind"`
	ItemID string `json:"itemId,omitempty"`
}

// JobAccepted is the body of a 202 from POST /api/jobs.
type JobAccepted struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}
