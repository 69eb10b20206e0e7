// Package vcs abstracts the version-controlled relational store. The engine
// talks to a Backend for branch-scoped SQL and out-of-band branch operations
// (create, list, commit) and never assumes a particular storage engine.
package vcs

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
)

// ErrBranchNotFound is returned by Open when the requested branch does not exist.
var ErrBranchNotFound = errors.New("branch not found")

// Querier is the statement surface shared by connections and transactions.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is an explicit transaction on a branch-scoped connection.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Conn is a persistent, branch-scoped connection to the versioned store.
type Conn interface {
	Querier

	// Begin starts an explicit transaction.
	Begin(ctx context.Context) (Tx, error)

	// Commit creates a version-control commit of the branch's working set
	// and returns its identifier. Distinct from Tx.Commit, which only ends
	// a SQL transaction.
	Commit(ctx context.Context, message string) (string, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Branch returns the branch this connection is scoped to.
	Branch() string

	Close() error
}

// Backend supplies branch-scoped connections plus branch administration.
type Backend interface {
	// Open returns a connection scoped to the given branch.
	// Returns ErrBranchNotFound if the branch does not exist.
	Open(ctx context.Context, branch string) (Conn, error)

	// BranchExists reports whether the named branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)

	// CreateBranch creates a new branch from the given base.
	CreateBranch(ctx context.Context, name, from string) error

	// ListBranches returns all branch names.
	ListBranches(ctx context.Context) ([]string, error)

	Close() error
}

// transientPhrases are substrings of errors that indicate recoverable
// connection loss rather than a statement-level failure.
var transientPhrases = []string{
	"broken pipe",
	"connection refused",
	"connection reset",
	"invalid connection",
	"bad connection",
	"i/o timeout",
	"server has gone away",
}

// IsTransient reports whether err looks like recoverable connection loss.
// Such errors get exactly one transparent retry at the connection manager.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// alreadyExistsPhrases cover the store's own phrasing for schema objects
// that are already present. MySQL/Dolt and SQLite word these differently.
var alreadyExistsPhrases = []string{
	"already exists",
	"duplicate column",
	"duplicate key name",
	"duplicate entry",
	"unique constraint failed",
}

// IsAlreadyExists reports whether err is the store saying a schema object or
// row already exists. The migration runner treats this as "already applied"
// rather than failure.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range alreadyExistsPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
