package event

import "time"

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Block lifecycle
	BlockCreated EventType = "block.created"
	BlockUpdated EventType = "block.updated"
	BlockDeleted EventType = "block.deleted"

	// Link lifecycle
	LinkCreated EventType = "link.created"

	// Namespace lifecycle
	NamespaceCreated EventType = "namespace.created"

	// Branch lifecycle
	BranchSwitched EventType = "branch.switched"
	BranchCreated  EventType = "branch.created"

	// Schema lifecycle
	MigrationApplied EventType = "migration.applied"

	// Consistency
	ConsistencyViolation EventType = "consistency.violation"
)

// Event carries data about a lifecycle occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}
