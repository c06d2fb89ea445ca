package domain

import (
	"errors"

	"github.com/bytedance/sonic"
)

// MutationKind enumerates the board changes the engine can apply.
type MutationKind string

const (
	MutationMove    MutationKind = "move"
	MutationRemove  MutationKind = "remove"
	MutationRestore MutationKind = "restore"
)

// Mutation describes one user action against the board. For MutationRestore
// Item carries the full item to re-insert at ToContainer/ToPosition.
type Mutation struct {
	Kind           MutationKind `json:"kind"`
	ItemID         string       `json:"itemId"`
	FromContainer  string       `json:"fromContainer,omitempty"`
	FromPosition   int          `json:"fromPosition"`
	ToContainer    string       `json:"toContainer,omitempty"`
	ToPosition     int          `json:"toPosition"`
	Reason         string       `json:"reason,omitempty"`
	Item           *Item        `json:"item,omitempty"`
	IdempotencyKey string       `json:"-"`

	// Undoable asks the controller to record the confirmed mutation on the undo stack.
	Undoable bool   `json:"-"`
	UndoType string `json:"-"`
}

// Command represents a write request for the board service.
type Command struct {
	// Id carries the idempotency key when applied by the board service.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	EntityType     string                 `json:"entityType"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// CommandEnvelope wraps a command with the user performing it.
type CommandEnvelope struct {
	UserID  string  `json:"userId"`
	Command Command `json:"command"`
}

// NewCommand encodes m as a task command carrying the given idempotency key.
func NewCommand(m Mutation, key string) (Command, error) {
	data, err := sonic.Marshal(m)
	if err != nil {
		return Command{}, err
	}
	return Command{
		IdempotencyKey: key,
		EntityType:     "task",
		Type:           string(m.Kind),
		Data:           data,
	}, nil
}

// Mutation decodes the command payload.
func (c Command) Mutation() (Mutation, error) {
	if len(c.Data) == 0 {
		return Mutation{}, errors.New("command has no data")
	}
	var m Mutation
	if err := sonic.Unmarshal(c.Data, &m); err != nil {
		return Mutation{}, err
	}
	if m.Kind == "" {
		m.Kind = MutationKind(c.Type)
	}
	m.IdempotencyKey = c.IdempotencyKey
	return m, nil
}
