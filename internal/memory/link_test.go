package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/memory"
	"github.com/memgit-oss/memgit/internal/testutil"
)

func TestCreateLinkMaterializesInverse(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")

	link, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "references",
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if link.InverseRelation != "referenced_by" {
		t.Errorf("inverse relation = %q, want referenced_by", link.InverseRelation)
	}
	h.AssertEventEmitted(t, event.LinkCreated)

	// The inverse edge reads from b without traversing the forward one.
	fromB, err := h.Engine.Links.Links(ctx, b.ID, memory.DirectionForward)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(fromB) != 1 {
		t.Fatalf("links from b = %d, want 1", len(fromB))
	}
	if fromB[0].Relation != "referenced_by" || fromB[0].ToID != a.ID {
		t.Errorf("inverse edge = %+v, want referenced_by -> %s", fromB[0], a.ID)
	}

	if got := h.Engine.Metrics().Snapshot()["links_written"]; got != 2 {
		t.Errorf("links_written = %d, want 2 (forward plus inverse)", got)
	}
}

func TestSymmetricRelationWritesBothDirections(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")

	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "relates_to",
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		links, err := h.Engine.Links.Links(ctx, id, memory.DirectionForward)
		if err != nil {
			t.Fatalf("Links(%s) error = %v", id, err)
		}
		if len(links) != 1 || links[0].Relation != "relates_to" {
			t.Errorf("links from %s = %+v, want one relates_to edge", id, links)
		}
	}
}

func TestCreateLinkValidation(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")

	tests := []struct {
		name string
		spec memory.LinkSpec
		code string
	}{
		{"missing endpoints", memory.LinkSpec{Relation: "references"}, errors.CodeValidation},
		{"self link", memory.LinkSpec{FromID: a.ID, ToID: a.ID, Relation: "references"}, errors.CodeValidation},
		{"unknown relation", memory.LinkSpec{FromID: a.ID, ToID: "other", Relation: "loves"}, errors.CodeValidation},
		{"missing target", memory.LinkSpec{FromID: a.ID, ToID: "ghost", Relation: "references"}, errors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Engine.Links.CreateLink(ctx, tt.spec)
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("CreateLink() = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestUnknownRelationSuggestsKnownOnes(t *testing.T) {
	h := testutil.NewHarness(t)

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")

	_, err := h.Engine.Links.CreateLink(context.Background(), memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "depends",
	})
	if err == nil {
		t.Fatal("CreateLink() succeeded with unknown relation")
	}
	if s := errors.Suggestion(err); !strings.Contains(s, "references") {
		t.Errorf("suggestion %q does not list known relations", s)
	}
}

func TestBulkCreateLinksSkipsMissingEndpoints(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")
	c := h.MustCreateBlock(t, "c")

	report, err := h.Engine.Links.BulkCreateLinks(ctx, []memory.LinkSpec{
		{FromID: a.ID, ToID: b.ID, Relation: "references"},
		{FromID: b.ID, ToID: "ghost", Relation: "blocks"},
		{FromID: a.ID, ToID: c.ID, Relation: "parent_of"},
		{FromID: c.ID, ToID: c.ID, Relation: "references"},
	})
	if err != nil {
		t.Fatalf("BulkCreateLinks() error = %v", err)
	}

	if report.Successful != 2 || report.Skipped != 1 || report.Failed != 1 {
		t.Fatalf("report = %d ok / %d skipped / %d failed, want 2 / 1 / 1",
			report.Successful, report.Skipped, report.Failed)
	}
	// Forward and inverse rows both count toward the actual total.
	if report.TotalActualLinks != 4 {
		t.Errorf("TotalActualLinks = %d, want 4", report.TotalActualLinks)
	}
	if len(report.SkippedSpecs) != 1 || !strings.Contains(report.SkippedSpecs[0].Reason, "ghost") {
		t.Errorf("skip reason = %+v, want mention of ghost", report.SkippedSpecs)
	}
}

func TestLinksDirections(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")
	c := h.MustCreateBlock(t, "c")

	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "parent_of", Priority: 2,
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: c.ID, Relation: "parent_of", Priority: 1,
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	forward, err := h.Engine.Links.Links(ctx, a.ID, memory.DirectionForward)
	if err != nil {
		t.Fatalf("Links(forward) error = %v", err)
	}
	if len(forward) != 2 {
		t.Fatalf("forward links = %d, want 2", len(forward))
	}
	// Ordered by priority, so the c edge comes first.
	if forward[0].ToID != c.ID || forward[1].ToID != b.ID {
		t.Errorf("forward order = [%s %s], want [%s %s]", forward[0].ToID, forward[1].ToID, c.ID, b.ID)
	}

	inverse, err := h.Engine.Links.Links(ctx, a.ID, memory.DirectionInverse)
	if err != nil {
		t.Fatalf("Links(inverse) error = %v", err)
	}
	// The materialized child_of edges point back at a.
	if len(inverse) != 2 {
		t.Errorf("inverse links = %d, want 2", len(inverse))
	}

	both, err := h.Engine.Links.Links(ctx, a.ID, memory.DirectionBoth)
	if err != nil {
		t.Fatalf("Links(both) error = %v", err)
	}
	if len(both) != 4 {
		t.Errorf("both links = %d, want 4", len(both))
	}

	if _, err := h.Engine.Links.Links(ctx, a.ID, memory.Direction("sideways")); !errors.HasCode(err, errors.CodeValidation) {
		t.Errorf("Links(sideways) = %v, want VALIDATION", err)
	}
}

func TestLinksForUnlinkedBlockIsEmptyNotNil(t *testing.T) {
	h := testutil.NewHarness(t)

	a := h.MustCreateBlock(t, "a")
	links, err := h.Engine.Links.Links(context.Background(), a.ID, memory.DirectionBoth)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if links == nil {
		t.Fatal("Links() = nil, want empty slice")
	}
	if len(links) != 0 {
		t.Errorf("links = %v, want none", links)
	}
}

func TestLinkManagerFollowsBranchSwitch(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")

	// Fork after the blocks exist so they are visible on both branches.
	if err := h.Backend.CreateBranch(ctx, "feature-2", testutil.WorkBranch); err != nil {
		t.Fatalf("failed to create branch: %v", err)
	}
	if err := h.Engine.SwitchBranch(ctx, "feature-2"); err != nil {
		t.Fatalf("SwitchBranch() error = %v", err)
	}

	// The very next link lands on the new branch.
	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "follows",
	}); err != nil {
		t.Fatalf("CreateLink() after switch = %v", err)
	}

	onNew, err := h.Engine.Links.Links(ctx, a.ID, memory.DirectionForward)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(onNew) != 1 {
		t.Fatalf("links on feature-2 = %d, want 1", len(onNew))
	}

	// The old branch never saw the edge.
	if err := h.Engine.SwitchBranch(ctx, testutil.WorkBranch); err != nil {
		t.Fatalf("SwitchBranch() error = %v", err)
	}
	onOld, err := h.Engine.Links.Links(ctx, a.ID, memory.DirectionForward)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(onOld) != 0 {
		t.Errorf("links on %s = %d, want 0", testutil.WorkBranch, len(onOld))
	}
}

func TestLinksRecordsDriftForMissingBlock(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "keeps its row")
	b := h.MustCreateBlock(t, "loses its row")
	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "references",
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	// Bypass the deletion cascade so b's edges become orphans.
	if _, err := h.Engine.Conns.Exec(ctx, testutil.WorkBranch,
		"DELETE FROM memory_blocks WHERE id = ?", true, b.ID); err != nil {
		t.Fatalf("raw delete error = %v", err)
	}

	links, err := h.Engine.Links.Links(ctx, b.ID, memory.DirectionBoth)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("Links() returned %d edges, want both directions", len(links))
	}

	records := h.Engine.Monitor.Records()
	if len(records) != 1 || records[0].BlockID != b.ID {
		t.Fatalf("monitor records = %+v, want one drift record for %s", records, b.ID)
	}
	err = h.Engine.Monitor.RaiseIfInconsistent()
	if !errors.HasCode(err, errors.CodeInconsistentState) {
		t.Fatalf("RaiseIfInconsistent() = %v, want INCONSISTENT_STATE", err)
	}
}
