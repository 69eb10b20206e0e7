// Package memory implements the persistence and consistency engine: typed
// memory blocks and the links between them, stored on a branch-versioned
// backend with namespace isolation and a protected canonical branch.
package memory

import "time"

// Block types. The type governs which metadata fields are required.
const (
	TypeKnowledge = "knowledge"
	TypeTask      = "task"
	TypeDocument  = "document"
)

// Commit states for the provenance marker. A staged row is in the branch's
// working set; a committed row is part of a version-control commit.
const (
	CommitStateStaged    = "staged"
	CommitStateCommitted = "committed"
)

// Block is a stored memory block.
type Block struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	NamespaceID string                 `json:"namespace_id"`
	Branch      string                 `json:"branch"`
	Tags        []string               `json:"tags,omitempty"`
	CreatedBy   string                 `json:"created_by,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CommitState string                 `json:"commit_state"`
}

// BlockSpec is the input for creating a block.
type BlockSpec struct {
	Type        string                 `json:"type"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	NamespaceID string                 `json:"namespace_id"`
	Branch      string                 `json:"branch,omitempty"` // empty means the active branch
	Tags        []string               `json:"tags,omitempty"`
	CreatedBy   string                 `json:"created_by,omitempty"`
}

// Patch describes a partial block update. Nil fields are left unchanged.
type Patch struct {
	Content  *string                `json:"content,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Tags     []string               `json:"tags,omitempty"`
}

// Link is a typed, directed edge between two blocks. When the relation has a
// known inverse, the inverse edge is materialized as a second row in the same
// transaction, so both directions read from the same branch state.
type Link struct {
	ID              string    `json:"id"`
	FromID          string    `json:"from_id"`
	ToID            string    `json:"to_id"`
	Relation        string    `json:"relation"`
	InverseRelation string    `json:"inverse_relation,omitempty"`
	Priority        int       `json:"priority"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// LinkSpec is the input for creating a link.
type LinkSpec struct {
	FromID    string `json:"from_id"`
	ToID      string `json:"to_id"`
	Relation  string `json:"relation"`
	Priority  int    `json:"priority,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

// Namespace is a logical partition of blocks.
type Namespace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Direction selects which edges Links returns for a block.
type Direction string

const (
	DirectionForward Direction = "forward" // edges where the block is the source
	DirectionInverse Direction = "inverse" // edges where the block is the target
	DirectionBoth    Direction = "both"
)

// CreateOptions controls durability of a write.
type CreateOptions struct {
	// AutoCommit requests an immediate version-control commit. Without it
	// the row lands in the working set with a staged provenance marker.
	AutoCommit    bool
	CommitMessage string
}
