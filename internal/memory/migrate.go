package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/vcs"
)

// DefaultSchemaBranchPattern restricts migrations to dedicated schema
// branches unless explicitly overridden.
const DefaultSchemaBranchPattern = `^schema/`

// Migration is one ordered, reversible schema change.
type Migration struct {
	Seq  int
	Name string
	Up   []string
	Down []string
}

// MigrationRunner applies migrations in strict sequence order, inside
// explicit transactions, restricted to schema branches.
type MigrationRunner struct {
	conns    *ConnManager
	pattern  *regexp.Regexp
	allowAny bool
	logger   *telemetry.Logger
	bus      *event.Bus
}

// NewMigrationRunner creates a runner. An empty pattern uses the default.
func NewMigrationRunner(conns *ConnManager, pattern string, allowAny bool, logger *telemetry.Logger, bus *event.Bus) (*MigrationRunner, error) {
	if pattern == "" {
		pattern = DefaultSchemaBranchPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigInvalid,
			fmt.Sprintf("invalid schema branch pattern %q", pattern), err)
	}
	return &MigrationRunner{
		conns:    conns,
		pattern:  re,
		allowAny: allowAny,
		logger:   logger,
		bus:      bus,
	}, nil
}

func (r *MigrationRunner) ensureTable(ctx context.Context, branch string) error {
	_, err := r.conns.Exec(ctx, branch, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			seq INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			applied_at DATETIME NOT NULL,
			PRIMARY KEY (seq)
		)`, true)
	return err
}

func (r *MigrationRunner) appliedSeqs(ctx context.Context, branch string) (map[int]bool, error) {
	rows, err := r.conns.Query(ctx, branch, "SELECT seq FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		applied[seq] = true
	}
	return applied, rows.Err()
}

// Apply runs one migration on the branch. Already-applied migrations fail
// with MIGRATION_APPLIED, which callers can treat as a recognizable no-op.
// A migration whose every step collides with existing schema is recorded
// and reported the same way, since the schema already reflects it.
func (r *MigrationRunner) Apply(ctx context.Context, branch string, m Migration) error {
	if !r.allowAny && !r.pattern.MatchString(branch) {
		return errors.Newf(errors.CodeMigration,
			"migrations are restricted to branches matching %q, got %q", r.pattern.String(), branch).
			WithSuggestion("Run migrations on a schema branch, or set migrations.allow_any_branch")
	}

	if err := r.ensureTable(ctx, branch); err != nil {
		return err
	}
	applied, err := r.appliedSeqs(ctx, branch)
	if err != nil {
		return err
	}

	if applied[m.Seq] {
		return errors.Newf(errors.CodeMigrationApplied,
			"migration %d (%s) already applied on branch %q", m.Seq, m.Name, branch)
	}
	if blocked := lowestUnapplied(applied, m.Seq); blocked != 0 {
		return errors.Newf(errors.CodeMigration,
			"migration %d (%s) blocked: migration %d has not been applied yet", m.Seq, m.Name, blocked)
	}

	tx, err := r.conns.Begin(ctx, branch, true)
	if err != nil {
		return err
	}

	// Steps whose effect is already present (the store's own "already
	// exists" phrasing) are tolerated per step, so the remaining steps
	// still run and nothing a prior step created is rolled back. Both
	// backends keep the transaction usable after a failed statement.
	collisions := 0
	for _, step := range m.Up {
		if _, err := tx.ExecContext(ctx, step); err != nil {
			if vcs.IsAlreadyExists(err) {
				collisions++
				continue
			}
			tx.Rollback()
			return r.rollback(ctx, branch, m, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (seq, name, applied_at) VALUES (?, ?, ?)",
		m.Seq, m.Name, time.Now().UTC()); err != nil {
		tx.Rollback()
		return r.rollback(ctx, branch, m, err)
	}

	if err := tx.Commit(); err != nil {
		return r.rollback(ctx, branch, m, err)
	}

	if len(m.Up) > 0 && collisions == len(m.Up) {
		return errors.Newf(errors.CodeMigrationApplied,
			"migration %d (%s) already reflected in schema", m.Seq, m.Name)
	}

	r.logger.Info("applied migration", "seq", m.Seq, "name", m.Name, "branch", branch)
	r.bus.Emit(event.NewEvent(event.MigrationApplied, map[string]interface{}{
		"seq":    m.Seq,
		"name":   m.Name,
		"branch": branch,
	}))
	return nil
}

// rollback runs the Down steps best-effort and reports the ORIGINAL forward
// error as the failure; a rollback failure is attached as secondary detail,
// never replacing the cause.
func (r *MigrationRunner) rollback(ctx context.Context, branch string, m Migration, cause error) error {
	var rollbackErr error
	for _, step := range m.Down {
		if _, err := r.conns.Exec(ctx, branch, step, true); err != nil && rollbackErr == nil {
			rollbackErr = err
		}
	}

	msg := fmt.Sprintf("migration %d (%s) failed on branch %q", m.Seq, m.Name, branch)
	if rollbackErr != nil {
		msg += fmt.Sprintf(" (rollback also failed: %v)", rollbackErr)
	}
	return errors.Wrap(errors.CodeMigration, msg, cause)
}

// lowestUnapplied returns the smallest sequence below target that has not
// been applied, or 0 when ordering is satisfied. Sequences are numbered
// densely from 1.
func lowestUnapplied(applied map[int]bool, target int) int {
	for seq := 1; seq < target; seq++ {
		if !applied[seq] {
			return seq
		}
	}
	return 0
}

// ApplyAll applies every pending migration in sequence order, skipping ones
// already applied. Returns how many were newly applied.
func (r *MigrationRunner) ApplyAll(ctx context.Context, branch string, migrations []Migration) (int, error) {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	count := 0
	for _, m := range sorted {
		err := r.Apply(ctx, branch, m)
		if err != nil {
			if errors.HasCode(err, errors.CodeMigrationApplied) {
				r.logger.Debug("migration already applied", "seq", m.Seq, "name", m.Name)
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}
