package vcs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DoltConfig holds connection settings for a Dolt sql-server.
type DoltConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSL      bool
}

// DoltBackend connects to a Dolt sql-server over the MySQL wire protocol.
// Branch scoping uses Dolt revision databases: connecting to "db/branch"
// pins every statement on that connection to the branch.
type DoltBackend struct {
	cfg   DoltConfig
	admin *sql.DB // unpinned connection for branch administration
}

// NewDoltBackend opens the administrative connection and verifies it.
func NewDoltBackend(cfg DoltConfig) (*DoltBackend, error) {
	db, err := sql.Open("mysql", doltDSN(cfg, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to open dolt connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping dolt server: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DoltBackend{cfg: cfg, admin: db}, nil
}

// doltDSN builds a DSN for the configured server, optionally pinned to a
// branch via a revision database ("db/branch").
func doltDSN(cfg DoltConfig, branch string) string {
	database := cfg.Database
	if branch != "" {
		database = cfg.Database + "/" + branch
	}

	tls := "false"
	if cfg.SSL {
		tls = "true"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?tls=%s&parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, database, tls)
}

// Open returns a connection pinned to the given branch.
func (b *DoltBackend) Open(ctx context.Context, branch string) (Conn, error) {
	exists, err := b.BranchExists(ctx, branch)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	db, err := sql.Open("mysql", doltDSN(b.cfg, branch))
	if err != nil {
		return nil, fmt.Errorf("failed to open branch connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping branch %s: %w", branch, err)
	}

	return &doltConn{db: db, branch: branch}, nil
}

// BranchExists checks dolt_branches for the named branch.
func (b *DoltBackend) BranchExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := b.admin.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dolt_branches WHERE name = ?", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check branch %s: %w", name, err)
	}
	return count > 0, nil
}

// CreateBranch creates a branch from the given base via DOLT_BRANCH.
func (b *DoltBackend) CreateBranch(ctx context.Context, name, from string) error {
	if _, err := b.admin.ExecContext(ctx, "CALL DOLT_BRANCH(?, ?)", name, from); err != nil {
		return fmt.Errorf("failed to create branch %s from %s: %w", name, from, err)
	}
	return nil
}

// ListBranches returns all branch names.
func (b *DoltBackend) ListBranches(ctx context.Context) ([]string, error) {
	rows, err := b.admin.QueryContext(ctx, "SELECT name FROM dolt_branches ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the administrative connection.
func (b *DoltBackend) Close() error {
	return b.admin.Close()
}

// doltConn is a branch-pinned connection to a Dolt server.
type doltConn struct {
	db     *sql.DB
	branch string
}

func (c *doltConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *doltConn) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

func (c *doltConn) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *doltConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Commit stages everything and creates a Dolt commit, returning its hash.
func (c *doltConn) Commit(ctx context.Context, message string) (string, error) {
	var hash string
	err := c.db.QueryRowContext(ctx,
		"CALL DOLT_COMMIT('-A', '--allow-empty', '-m', ?)", message).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("failed to commit on branch %s: %w", c.branch, err)
	}
	return hash, nil
}

func (c *doltConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *doltConn) Branch() string {
	return c.branch
}

func (c *doltConn) Close() error {
	return c.db.Close()
}
