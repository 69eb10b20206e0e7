package memory_test

import (
	"context"
	"testing"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/memory"
	"github.com/memgit-oss/memgit/internal/testutil"
)

func TestMarkInconsistentRecordsAndRaises(t *testing.T) {
	h := testutil.NewHarness(t)
	monitor := h.Engine.Monitor

	if err := monitor.RaiseIfInconsistent(); err != nil {
		t.Fatalf("RaiseIfInconsistent() on clean state = %v, want nil", err)
	}

	monitor.MarkInconsistent("b1", "link references missing block")
	monitor.MarkInconsistent("b2", "link references missing block")
	h.AssertEventEmitted(t, event.ConsistencyViolation)

	records := monitor.Records()
	if len(records) != 2 {
		t.Fatalf("Records() = %d, want 2", len(records))
	}
	if records[0].BlockID != "b1" || records[0].DetectedAt.IsZero() {
		t.Errorf("first record = %+v, want b1 with timestamp", records[0])
	}

	err := monitor.RaiseIfInconsistent()
	if !errors.HasCode(err, errors.CodeInconsistentState) {
		t.Fatalf("RaiseIfInconsistent() = %v, want INCONSISTENT_STATE", err)
	}

	monitor.Reset()
	if err := monitor.RaiseIfInconsistent(); err != nil {
		t.Errorf("RaiseIfInconsistent() after Reset = %v, want nil", err)
	}
}

func TestRaiseActiveWithoutVerboseLogging(t *testing.T) {
	// The harness logger is not verbose; raising must still work.
	h := testutil.NewHarness(t)

	h.Engine.Monitor.MarkInconsistent("b1", "test drift")
	err := h.Engine.Monitor.RaiseIfInconsistent()
	if !errors.HasCode(err, errors.CodeInconsistentState) {
		t.Fatalf("RaiseIfInconsistent() = %v, want INCONSISTENT_STATE regardless of log level", err)
	}
}

func TestScanSkippedWithoutVerboseLogging(t *testing.T) {
	h := testutil.NewHarness(t)

	found, err := h.Engine.Monitor.Scan(context.Background(), testutil.WorkBranch)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if found != 0 {
		t.Errorf("Scan() without verbose logging found %d, want 0 (skipped)", found)
	}
}

func TestScanFindsOrphanedEdges(t *testing.T) {
	h := testutil.NewVerboseHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")
	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "references",
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	// Remove the block row directly, bypassing the deletion cascade, to
	// manufacture the drift the scan exists to find.
	if _, err := h.Engine.Conns.Exec(ctx, testutil.WorkBranch,
		"DELETE FROM memory_blocks WHERE id = ?", true, b.ID); err != nil {
		t.Fatalf("raw delete error = %v", err)
	}

	found, err := h.Engine.Monitor.Scan(ctx, testutil.WorkBranch)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	// The forward edge and the materialized inverse both touch the missing
	// block.
	if found != 2 {
		t.Fatalf("Scan() found %d orphaned endpoints, want 2", found)
	}

	err = h.Engine.Monitor.RaiseIfInconsistent()
	if !errors.HasCode(err, errors.CodeInconsistentState) {
		t.Fatalf("RaiseIfInconsistent() after scan = %v, want INCONSISTENT_STATE", err)
	}
}

func TestScanOnConsistentBranchFindsNothing(t *testing.T) {
	h := testutil.NewVerboseHarness(t)
	ctx := context.Background()

	a := h.MustCreateBlock(t, "a")
	b := h.MustCreateBlock(t, "b")
	if _, err := h.Engine.Links.CreateLink(ctx, memory.LinkSpec{
		FromID: a.ID, ToID: b.ID, Relation: "references",
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	found, err := h.Engine.Monitor.Scan(ctx, testutil.WorkBranch)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if found != 0 {
		t.Errorf("Scan() found %d on consistent branch, want 0", found)
	}
}
