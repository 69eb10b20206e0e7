package memory_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/memory"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/testutil"
	"github.com/memgit-oss/memgit/internal/vcs"
)

func TestGuardWriteRejectsProtectedBranchVariants(t *testing.T) {
	h := testutil.NewHarness(t)
	conns := h.Engine.Conns

	for _, branch := range []string{"main", "Main", "MAIN", " main ", "\tMaIn\n"} {
		err := conns.GuardWrite(branch)
		if !errors.HasCode(err, errors.CodeProtectedBranch) {
			t.Errorf("GuardWrite(%q) = %v, want PROTECTED_BRANCH", branch, err)
		}
	}

	for _, branch := range []string{"maintenance", "main-2", "feature-1", "schema/main"} {
		if err := conns.GuardWrite(branch); err != nil {
			t.Errorf("GuardWrite(%q) = %v, want nil", branch, err)
		}
	}
}

func TestProtectedWriteFailsBeforeAnyIO(t *testing.T) {
	h := testutil.NewHarness(t)

	// A write against the protected branch must fail even though no
	// connection for it has ever been opened.
	_, err := h.Engine.Conns.Exec(context.Background(), "main",
		"INSERT INTO memory_blocks (id) VALUES ('x')", true)
	if !errors.HasCode(err, errors.CodeProtectedBranch) {
		t.Fatalf("Exec on protected branch = %v, want PROTECTED_BRANCH", err)
	}
}

func TestAcquireUnknownBranch(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := h.Engine.Conns.Acquire(context.Background(), "no-such-branch")
	if !errors.HasCode(err, errors.CodeBranchNotFound) {
		t.Fatalf("Acquire unknown branch = %v, want BRANCH_NOT_FOUND", err)
	}
}

// flakyBackend wraps a real backend and makes connections fail their next N
// statements with a transient error.
type flakyBackend struct {
	vcs.Backend

	mu       sync.Mutex
	failNext int
}

func (b *flakyBackend) Open(ctx context.Context, branch string) (vcs.Conn, error) {
	conn, err := b.Backend.Open(ctx, branch)
	if err != nil {
		return nil, err
	}
	return &flakyConn{Conn: conn, backend: b}, nil
}

func (b *flakyBackend) takeFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext > 0 {
		b.failNext--
		return true
	}
	return false
}

type flakyConn struct {
	vcs.Conn
	backend *flakyBackend
}

func (c *flakyConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if c.backend.takeFailure() {
		return nil, driver.ErrBadConn
	}
	return c.Conn.ExecContext(ctx, query, args...)
}

func newFlakyManager(t *testing.T) (*memory.ConnManager, *flakyBackend, *telemetry.Metrics) {
	t.Helper()

	inner, err := vcs.NewSQLiteBackend("main")
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { inner.Close() })

	if err := inner.CreateBranch(context.Background(), "feature", "main"); err != nil {
		t.Fatalf("failed to create branch: %v", err)
	}

	backend := &flakyBackend{Backend: inner}
	metrics := telemetry.NewMetrics()
	conns := memory.NewConnManager(backend, "main", "feature", telemetry.NewLogger(false, "text"), metrics)
	t.Cleanup(func() { conns.Close() })
	return conns, backend, metrics
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	conns, backend, metrics := newFlakyManager(t)
	ctx := context.Background()

	backend.failNext = 1
	if _, err := conns.Exec(ctx, "feature", "CREATE TABLE t (id INT)", true); err != nil {
		t.Fatalf("Exec after single transient failure = %v, want success", err)
	}
	if got := metrics.Snapshot()["connection_retries"]; got != 1 {
		t.Errorf("connection_retries = %d, want 1", got)
	}
}

func TestPersistentTransientFailureSurfaces(t *testing.T) {
	conns, backend, _ := newFlakyManager(t)
	ctx := context.Background()

	backend.failNext = 2
	_, err := conns.Exec(ctx, "feature", "CREATE TABLE t (id INT)", true)
	if !errors.HasCode(err, errors.CodeTransientConnection) {
		t.Fatalf("Exec with persistent failure = %v, want TRANSIENT_CONNECTION", err)
	}
}

func TestProtectionViolationNeverRetried(t *testing.T) {
	conns, backend, metrics := newFlakyManager(t)
	ctx := context.Background()

	backend.failNext = 1
	_, err := conns.Exec(ctx, "main", "CREATE TABLE t (id INT)", true)
	if !errors.HasCode(err, errors.CodeProtectedBranch) {
		t.Fatalf("Exec on protected branch = %v, want PROTECTED_BRANCH", err)
	}
	if got := metrics.Snapshot()["connection_retries"]; got != 0 {
		t.Errorf("connection_retries = %d, want 0: protection violations must not retry", got)
	}
}

type recordingSubscriber struct {
	mu       sync.Mutex
	branches []string
}

func (s *recordingSubscriber) BranchChanged(branch string) {
	s.mu.Lock()
	s.branches = append(s.branches, branch)
	s.mu.Unlock()
}

func TestSwitchActiveBranchNotifiesSubscribers(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	sub := &recordingSubscriber{}
	h.Engine.Conns.Subscribe(sub)

	if err := h.Backend.CreateBranch(ctx, "feature-2", testutil.SchemaBranch); err != nil {
		t.Fatalf("failed to create branch: %v", err)
	}
	if err := h.Engine.SwitchBranch(ctx, "feature-2"); err != nil {
		t.Fatalf("SwitchBranch() error = %v", err)
	}

	if got := h.Engine.Conns.ActiveBranch(); got != "feature-2" {
		t.Errorf("ActiveBranch() = %q, want feature-2", got)
	}
	if len(sub.branches) != 1 || sub.branches[0] != "feature-2" {
		t.Errorf("subscriber saw %v, want [feature-2]", sub.branches)
	}
}

func TestSwitchToUnknownBranchLeavesStateUntouched(t *testing.T) {
	h := testutil.NewHarness(t)

	sub := &recordingSubscriber{}
	h.Engine.Conns.Subscribe(sub)

	err := h.Engine.SwitchBranch(context.Background(), "ghost")
	if !errors.HasCode(err, errors.CodeBranchNotFound) {
		t.Fatalf("SwitchBranch(ghost) = %v, want BRANCH_NOT_FOUND", err)
	}
	if got := h.Engine.Conns.ActiveBranch(); got != testutil.WorkBranch {
		t.Errorf("ActiveBranch() = %q, want %q", got, testutil.WorkBranch)
	}
	if len(sub.branches) != 0 {
		t.Errorf("subscriber notified on failed switch: %v", sub.branches)
	}
}
