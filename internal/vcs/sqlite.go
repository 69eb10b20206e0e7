package vcs

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend emulates a branch-versioned store on SQLite for development
// and tests. Each branch is a named shared-cache in-memory database; creating
// a branch copies every table from its base. Commits are recorded in a
// bookkeeping table so provenance round-trips like the real backend.
//
// Not suitable for production: branch copies are full copies and there is no
// merge or diff support.
type SQLiteBackend struct {
	mu       sync.Mutex
	instance string
	branches map[string]*branchDB
}

type branchDB struct {
	db *sql.DB
	// pin holds one open connection so the shared-cache in-memory database
	// is not dropped when the pool goes idle.
	pin *sql.Conn
}

// NewSQLiteBackend creates a backend with a single initial branch.
func NewSQLiteBackend(initialBranch string) (*SQLiteBackend, error) {
	b := &SQLiteBackend{
		instance: uuid.New().String()[:8],
		branches: make(map[string]*branchDB),
	}
	if _, err := b.ensureBranch(initialBranch); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) branchDSN(branch string) string {
	// Hex-encode the branch name so "feature/x" and "feature-x" never
	// collide as database names.
	return fmt.Sprintf("file:memgit_%s_%x?mode=memory&cache=shared", b.instance, branch)
}

// ensureBranch opens (or creates) the in-memory database for a branch.
// Caller must hold b.mu or be the constructor.
func (b *SQLiteBackend) ensureBranch(name string) (*branchDB, error) {
	if bd, ok := b.branches[name]; ok {
		return bd, nil
	}

	db, err := sql.Open("sqlite3", b.branchDSN(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open branch database: %w", err)
	}

	pin, err := db.Conn(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to pin branch database: %w", err)
	}

	if _, err := pin.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS memgit_commits (
			id TEXT PRIMARY KEY,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`); err != nil {
		pin.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize branch bookkeeping: %w", err)
	}

	bd := &branchDB{db: db, pin: pin}
	b.branches[name] = bd
	return bd, nil
}

// Open returns a connection scoped to the given branch.
func (b *SQLiteBackend) Open(ctx context.Context, branch string) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bd, ok := b.branches[branch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	return &sqliteConn{db: bd.db, branch: branch}, nil
}

// BranchExists reports whether the branch exists.
func (b *SQLiteBackend) BranchExists(ctx context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.branches[name]
	return ok, nil
}

// CreateBranch creates a branch as a full copy of its base.
func (b *SQLiteBackend) CreateBranch(ctx context.Context, name, from string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.branches[name]; ok {
		return fmt.Errorf("branch %s already exists", name)
	}
	if _, ok := b.branches[from]; !ok {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, from)
	}

	bd, err := b.ensureBranch(name)
	if err != nil {
		return err
	}

	if err := b.copyBranch(ctx, bd, from); err != nil {
		bd.pin.Close()
		bd.db.Close()
		delete(b.branches, name)
		return fmt.Errorf("failed to copy branch %s: %w", from, err)
	}
	return nil
}

// copyBranch replays schema and rows from the source branch into dest.
func (b *SQLiteBackend) copyBranch(ctx context.Context, dest *branchDB, from string) error {
	attach := fmt.Sprintf("ATTACH DATABASE '%s' AS src", b.branchDSN(from))
	if _, err := dest.pin.ExecContext(ctx, attach); err != nil {
		return fmt.Errorf("failed to attach source branch: %w", err)
	}
	defer dest.pin.ExecContext(ctx, "DETACH DATABASE src")

	rows, err := dest.pin.QueryContext(ctx,
		`SELECT name, sql FROM src.sqlite_master WHERE type = 'table' AND sql IS NOT NULL`)
	if err != nil {
		return err
	}

	type tableDef struct{ name, ddl string }
	var tables []tableDef
	for rows.Next() {
		var t tableDef
		if err := rows.Scan(&t.name, &t.ddl); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range tables {
		var exists int
		err := dest.pin.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM main.sqlite_master WHERE type = 'table' AND name = ?`,
			t.name).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			if _, err := dest.pin.ExecContext(ctx, t.ddl); err != nil {
				return fmt.Errorf("failed to create table %s: %w", t.name, err)
			}
		}
		copyStmt := fmt.Sprintf("INSERT INTO main.%q SELECT * FROM src.%q", t.name, t.name)
		if _, err := dest.pin.ExecContext(ctx, copyStmt); err != nil {
			return fmt.Errorf("failed to copy table %s: %w", t.name, err)
		}
	}

	// Secondary indexes, ignoring ones the schema already created.
	idxRows, err := dest.pin.QueryContext(ctx,
		`SELECT sql FROM src.sqlite_master WHERE type = 'index' AND sql IS NOT NULL`)
	if err != nil {
		return err
	}
	var indexes []string
	for idxRows.Next() {
		var ddl string
		if err := idxRows.Scan(&ddl); err != nil {
			idxRows.Close()
			return err
		}
		indexes = append(indexes, ddl)
	}
	idxRows.Close()
	if err := idxRows.Err(); err != nil {
		return err
	}
	for _, ddl := range indexes {
		if _, err := dest.pin.ExecContext(ctx, ddl); err != nil && !IsAlreadyExists(err) {
			return fmt.Errorf("failed to copy index: %w", err)
		}
	}

	return nil
}

// ListBranches returns all branch names.
func (b *SQLiteBackend) ListBranches(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.branches))
	for name := range b.branches {
		names = append(names, name)
	}
	return names, nil
}

// Close releases every branch database.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, bd := range b.branches {
		if err := bd.pin.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := bd.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.branches, name)
	}
	return firstErr
}

// sqliteConn is a branch-scoped view over the branch's database. The backend
// owns the underlying handle, so Close is a no-op.
type sqliteConn struct {
	db     *sql.DB
	branch string
}

func (c *sqliteConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *sqliteConn) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

func (c *sqliteConn) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *sqliteConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Commit records an emulated version-control commit.
func (c *sqliteConn) Commit(ctx context.Context, message string) (string, error) {
	id := uuid.New().String()
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO memgit_commits (id, message, created_at) VALUES (?, ?, ?)",
		id, message, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record commit on branch %s: %w", c.branch, err)
	}
	return id, nil
}

func (c *sqliteConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *sqliteConn) Branch() string {
	return c.branch
}

func (c *sqliteConn) Close() error {
	return nil
}
