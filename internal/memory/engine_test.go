package memory_test

import (
	"context"
	"testing"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/memory"
	"github.com/memgit-oss/memgit/internal/testutil"
)

// countBlocks reads the block count on a branch directly, bypassing the
// store, so protection tests can prove zero rows were written.
func countBlocks(t *testing.T, h *testutil.Harness, branch string) int {
	t.Helper()
	rows, err := h.Engine.Conns.Query(context.Background(), branch,
		"SELECT COUNT(*) FROM memory_blocks")
	if err != nil {
		t.Fatalf("count query on %s: %v", branch, err)
	}
	defer rows.Close()

	var n int
	if !rows.Next() {
		t.Fatalf("count query on %s returned no rows", branch)
	}
	if err := rows.Scan(&n); err != nil {
		t.Fatalf("count scan: %v", err)
	}
	return n
}

func TestEndToEndAgentSession(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	// The agent sets up its namespace and records a document.
	ns := h.MustCreateNamespace(t, "team-x")

	doc, err := h.Engine.Blocks.Create(ctx, memory.BlockSpec{
		Type:        memory.TypeDocument,
		Content:     "## Incident 42\nThe cache was cold.",
		Metadata:    map[string]interface{}{"title": "Incident 42"},
		NamespaceID: ns.ID,
		Tags:        []string{"incident"},
	}, memory.CreateOptions{AutoCommit: true, CommitMessage: "record incident 42"})
	if err != nil {
		t.Fatalf("Create(document) error = %v", err)
	}

	// A follow-up knowledge block links back to the document.
	fact := h.MustCreateBlock(t, "cold caches cause incident 42 class outages")
	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: fact.ID, ToID: doc.ID, Relation: "references",
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	// The identical create against the protected branch is refused with zero
	// rows written anywhere.
	before := countBlocks(t, h, testutil.SchemaBranch)
	_, err = h.Engine.Blocks.Create(ctx, memory.BlockSpec{
		Type:        memory.TypeDocument,
		Content:     "## Incident 42",
		Metadata:    map[string]interface{}{"title": "Incident 42"},
		NamespaceID: ns.ID,
		Branch:      testutil.ProtectedBranch,
	}, memory.CreateOptions{})
	if !errors.HasCode(err, errors.CodeProtectedBranch) {
		t.Fatalf("Create on protected branch = %v, want PROTECTED_BRANCH", err)
	}
	if got := countBlocks(t, h, testutil.SchemaBranch); got != before {
		t.Errorf("schema branch row count changed: %d -> %d", before, got)
	}

	// The working branch carries both blocks and both link directions.
	if got := countBlocks(t, h, testutil.WorkBranch); got != 2 {
		t.Errorf("working branch has %d blocks, want 2", got)
	}
	back, err := h.Engine.Links.Links(ctx, doc.ID, memory.DirectionForward)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(back) != 1 || back[0].Relation != "referenced_by" {
		t.Errorf("document's outgoing edges = %+v, want one referenced_by", back)
	}

	// The session leaves a coherent metrics trail.
	snap := h.Engine.Metrics().Snapshot()
	if snap["blocks_written"] != 2 {
		t.Errorf("blocks_written = %d, want 2", snap["blocks_written"])
	}
	if snap["links_written"] != 2 {
		t.Errorf("links_written = %d, want 2", snap["links_written"])
	}
	if snap["branch_switches"] == 0 {
		t.Error("branch_switches = 0, want at least the harness switch")
	}

	// And nothing drifted.
	if err := h.Engine.Monitor.RaiseIfInconsistent(); err != nil {
		t.Errorf("RaiseIfInconsistent() = %v, want nil", err)
	}
}

func TestBranchesIsolateMemory(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	onFeature := h.MustCreateBlock(t, "only on feature-1")

	if err := h.Backend.CreateBranch(ctx, "feature-2", testutil.SchemaBranch); err != nil {
		t.Fatalf("failed to create branch: %v", err)
	}
	if err := h.Engine.SwitchBranch(ctx, "feature-2"); err != nil {
		t.Fatalf("SwitchBranch() error = %v", err)
	}

	_, err := h.Engine.Blocks.Get(ctx, "", onFeature.ID)
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("Get() across branches = %v, want NOT_FOUND", err)
	}

	onOther := h.MustCreateBlock(t, "only on feature-2")
	if err := h.Engine.SwitchBranch(ctx, testutil.WorkBranch); err != nil {
		t.Fatalf("SwitchBranch() error = %v", err)
	}
	if _, err := h.Engine.Blocks.Get(ctx, "", onOther.ID); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("Get() across branches = %v, want NOT_FOUND", err)
	}
	if _, err := h.Engine.Blocks.Get(ctx, "", onFeature.ID); err != nil {
		t.Fatalf("Get() on home branch = %v, want success", err)
	}
}
