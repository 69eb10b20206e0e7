package memory

import "github.com/memgit-oss/memgit/internal/errors"

// Per-item statuses for bulk operations.
const (
	ItemCreated = "created"
	ItemSkipped = "skipped"
	ItemFailed  = "failed"
)

// PerItemResult reports the outcome of one item in a bulk operation. Items
// succeed or fail independently; a failure at index k never prevents items
// after k from being attempted and never rolls back items before k.
type PerItemResult struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Code   string `json:"code,omitempty"` // error code for failed items
	Error  string `json:"error,omitempty"`
}

// SkippedSpec records a spec the batch precheck filtered out, with the
// reason, for debugging.
type SkippedSpec struct {
	Index  int         `json:"index"`
	Spec   interface{} `json:"spec"`
	Reason string      `json:"reason"`
}

// Report aggregates a bulk operation.
type Report struct {
	Successful int `json:"successful"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`

	// TotalActualBlocks / TotalActualLinks count rows actually written,
	// which for links includes materialized inverse edges.
	TotalActualBlocks int `json:"total_actual_blocks,omitempty"`
	TotalActualLinks  int `json:"total_actual_links,omitempty"`

	Items        []PerItemResult `json:"items"`
	SkippedSpecs []SkippedSpec   `json:"skipped_specs,omitempty"`
}

func (r *Report) addCreated(index int, id string, rows int, isLink bool) {
	r.Successful++
	if isLink {
		r.TotalActualLinks += rows
	} else {
		r.TotalActualBlocks += rows
	}
	r.Items = append(r.Items, PerItemResult{Index: index, ID: id, Status: ItemCreated})
}

func (r *Report) addFailed(index int, err error) {
	r.Failed++
	r.Items = append(r.Items, PerItemResult{
		Index:  index,
		Status: ItemFailed,
		Code:   errors.AsCode(err),
		Error:  err.Error(),
	})
}

func (r *Report) addSkipped(index int, spec interface{}, reason string) {
	r.Skipped++
	r.Items = append(r.Items, PerItemResult{Index: index, Status: ItemSkipped, Error: reason})
	r.SkippedSpecs = append(r.SkippedSpecs, SkippedSpec{Index: index, Spec: spec, Reason: reason})
}
