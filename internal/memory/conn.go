package memory

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/vcs"
)

// BranchSubscriber is notified synchronously when the active branch changes.
// The link manager registers itself so its view of the active branch can
// never lag behind the block store's.
type BranchSubscriber interface {
	BranchChanged(branch string)
}

// ConnManager owns one persistent connection per branch and is the single
// enforcement point for the protected-branch rule. All engine I/O goes
// through Exec/Query/Begin here.
type ConnManager struct {
	backend   vcs.Backend
	protected string
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics

	mu     sync.Mutex
	conns  map[string]vcs.Conn
	active string
	subs   []BranchSubscriber
}

// NewConnManager creates a connection manager. The active branch is not
// validated until first use or an explicit SwitchActiveBranch.
func NewConnManager(backend vcs.Backend, protected, active string, logger *telemetry.Logger, metrics *telemetry.Metrics) *ConnManager {
	return &ConnManager{
		backend:   backend,
		protected: protected,
		logger:    logger,
		metrics:   metrics,
		conns:     make(map[string]vcs.Conn),
		active:    active,
	}
}

// ProtectedBranch returns the protected branch name.
func (m *ConnManager) ProtectedBranch() string {
	return m.protected
}

// ActiveBranch returns the current active branch.
func (m *ConnManager) ActiveBranch() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Subscribe registers a subscriber for active-branch changes.
func (m *ConnManager) Subscribe(s BranchSubscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, s)
}

// IsProtected reports whether branch names the protected branch. The
// comparison trims whitespace and ignores case so the rule cannot be
// bypassed with "Main" or " main ".
func (m *ConnManager) IsProtected(branch string) bool {
	return strings.EqualFold(strings.TrimSpace(branch), strings.TrimSpace(m.protected))
}

// GuardWrite returns a protected-branch error if branch is the protected
// branch. Protection violations are caller errors and are never retried.
func (m *ConnManager) GuardWrite(branch string) error {
	if m.IsProtected(branch) {
		return errors.Newf(errors.CodeProtectedBranch,
			"direct writes to protected branch %q are not allowed", strings.TrimSpace(branch)).
			WithSuggestion("Switch to a working branch and merge through the normal review flow")
	}
	return nil
}

// Acquire returns the persistent connection for branch, opening one if
// needed. Safe to call repeatedly; connections are cached per branch.
func (m *ConnManager) Acquire(ctx context.Context, branch string) (vcs.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(ctx, branch)
}

func (m *ConnManager) acquireLocked(ctx context.Context, branch string) (vcs.Conn, error) {
	if conn, ok := m.conns[branch]; ok {
		return conn, nil
	}

	conn, err := m.backend.Open(ctx, branch)
	if err != nil {
		if stderrors.Is(err, vcs.ErrBranchNotFound) {
			return nil, errors.Newf(errors.CodeBranchNotFound, "branch %q does not exist", branch)
		}
		return nil, fmt.Errorf("failed to open connection for branch %s: %w", branch, err)
	}

	m.conns[branch] = conn
	return conn, nil
}

// drop discards the cached connection for branch so the next acquire
// re-establishes it.
func (m *ConnManager) drop(branch string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[branch]; ok {
		conn.Close()
		delete(m.conns, branch)
	}
}

// Exec runs a statement on the given branch. Writes against the protected
// branch fail before any connection is touched. Transient connection loss is
// retried exactly once after a transparent reconnect.
func (m *ConnManager) Exec(ctx context.Context, branch, query string, isWrite bool, args ...interface{}) (sql.Result, error) {
	if isWrite {
		if err := m.GuardWrite(branch); err != nil {
			return nil, err
		}
	}

	conn, err := m.Acquire(ctx, branch)
	if err != nil {
		return nil, err
	}

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil && vcs.IsTransient(err) {
		res, err = m.retryExec(ctx, branch, query, err, args...)
	}
	return res, err
}

func (m *ConnManager) retryExec(ctx context.Context, branch, query string, cause error, args ...interface{}) (sql.Result, error) {
	conn, err := m.reconnect(ctx, branch, cause)
	if err != nil {
		return nil, err
	}

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil && vcs.IsTransient(err) {
		return nil, errors.Wrap(errors.CodeTransientConnection,
			fmt.Sprintf("statement failed on branch %s after reconnect", branch), err)
	}
	return res, err
}

// Query runs a read on the given branch with the same single-retry policy.
func (m *ConnManager) Query(ctx context.Context, branch, query string, args ...interface{}) (*sql.Rows, error) {
	conn, err := m.Acquire(ctx, branch)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil && vcs.IsTransient(err) {
		conn, err = m.reconnect(ctx, branch, err)
		if err != nil {
			return nil, err
		}
		rows, err = conn.QueryContext(ctx, query, args...)
		if err != nil && vcs.IsTransient(err) {
			return nil, errors.Wrap(errors.CodeTransientConnection,
				fmt.Sprintf("query failed on branch %s after reconnect", branch), err)
		}
	}
	return rows, err
}

func (m *ConnManager) reconnect(ctx context.Context, branch string, cause error) (vcs.Conn, error) {
	m.metrics.IncConnectionRetries()
	m.logger.Debug("reconnecting after transient failure", "branch", branch, "cause", cause)
	m.drop(branch)

	conn, err := m.Acquire(ctx, branch)
	if err != nil {
		return nil, errors.Wrap(errors.CodeTransientConnection,
			fmt.Sprintf("failed to re-establish connection for branch %s", branch), cause)
	}
	return conn, nil
}

// Begin starts an explicit transaction on the branch. isWrite transactions
// are subject to the protected-branch rule.
func (m *ConnManager) Begin(ctx context.Context, branch string, isWrite bool) (vcs.Tx, error) {
	if isWrite {
		if err := m.GuardWrite(branch); err != nil {
			return nil, err
		}
	}

	conn, err := m.Acquire(ctx, branch)
	if err != nil {
		return nil, err
	}
	return conn.Begin(ctx)
}

// VCSCommit creates a version-control commit of the branch's working set.
// Committing on the protected branch is a write and is rejected.
func (m *ConnManager) VCSCommit(ctx context.Context, branch, message string) (string, error) {
	if err := m.GuardWrite(branch); err != nil {
		return "", err
	}

	conn, err := m.Acquire(ctx, branch)
	if err != nil {
		return "", err
	}
	return conn.Commit(ctx, message)
}

// SwitchActiveBranch validates the branch and swaps the active branch,
// notifying every subscriber before any caller can observe the new value.
// Subscribers are notified under the manager lock: there is no window where
// the block store and the link manager disagree about the active branch.
func (m *ConnManager) SwitchActiveBranch(ctx context.Context, branch string) error {
	exists, err := m.backend.BranchExists(ctx, branch)
	if err != nil {
		return fmt.Errorf("failed to check branch %s: %w", branch, err)
	}
	if !exists {
		return errors.Newf(errors.CodeBranchNotFound, "branch %q does not exist", branch).
			WithSuggestion("Create the branch first or check the name for typos")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == branch {
		return nil
	}
	m.active = branch
	for _, s := range m.subs {
		s.BranchChanged(branch)
	}

	m.metrics.IncBranchSwitches()
	m.logger.Info("switched active branch", "branch", branch)
	return nil
}

// Close releases every cached connection.
func (m *ConnManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for branch, conn := range m.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.conns, branch)
	}
	return firstErr
}
