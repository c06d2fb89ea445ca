package domain

// Item represents a single card on the board. Position is the item's index
// inside its container and is kept dense (0..n-1) by the board store.
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Notes       string `json:"notes,omitempty"`
	Kind        string `json:"kind,omitempty"`
	ContainerID string `json:"category"`
	Position    int    `json:"order"`
}

// Board maps a container id to its ordered items.
type Board map[string][]Item

// Well-known containers of the workflow board and the review queue.
const (
	ContainerInbox     = "inbox"
	ContainerResearch  = "research"
	ContainerReview    = "review"
	ContainerApproved  = "approved"
	ContainerDismissed = "dismissed"
)
