package memory

import (
	"sort"
	"strings"
)

// inverseRelations maps each known relation to its inverse. A relation that
// is its own inverse (relates_to) materializes a mirrored row with the same
// label.
var inverseRelations = map[string]string{
	"references":    "referenced_by",
	"referenced_by": "references",
	"parent_of":     "child_of",
	"child_of":      "parent_of",
	"blocks":        "blocked_by",
	"blocked_by":    "blocks",
	"follows":       "preceded_by",
	"preceded_by":   "follows",
	"relates_to":    "relates_to",
}

// KnownRelation reports whether the relation label is registered.
func KnownRelation(relation string) bool {
	_, ok := inverseRelations[strings.TrimSpace(relation)]
	return ok
}

// InverseOf returns the inverse label for a relation, if it has one.
func InverseOf(relation string) (string, bool) {
	inv, ok := inverseRelations[strings.TrimSpace(relation)]
	return inv, ok
}

// KnownRelations returns all registered relation labels, sorted.
func KnownRelations() []string {
	out := make([]string, 0, len(inverseRelations))
	for r := range inverseRelations {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
