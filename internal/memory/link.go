package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/vcs"
)

const linkColumns = "id, from_id, to_id, relation, inverse_relation, priority, created_by, created_at"

// LinkManager maintains the directed, typed link graph between blocks. It
// subscribes to active-branch changes so a link created right after a branch
// switch always lands on the new branch, never a stale one.
type LinkManager struct {
	conns   *ConnManager
	monitor *ConsistencyMonitor
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus

	mu     sync.RWMutex
	branch string

	now   func() time.Time
	newID func() string
}

// NewLinkManager creates a link manager bound to the connection manager's
// current active branch.
func NewLinkManager(conns *ConnManager, monitor *ConsistencyMonitor, logger *telemetry.Logger, metrics *telemetry.Metrics, bus *event.Bus) *LinkManager {
	return &LinkManager{
		conns:   conns,
		monitor: monitor,
		logger:  logger,
		metrics: metrics,
		bus:     bus,
		branch:  conns.ActiveBranch(),
		now:     time.Now,
		newID:   newID,
	}
}

// BranchChanged implements BranchSubscriber. Called synchronously by the
// connection manager during SwitchActiveBranch.
func (lm *LinkManager) BranchChanged(branch string) {
	lm.mu.Lock()
	lm.branch = branch
	lm.mu.Unlock()
	lm.logger.Debug("link manager synced to branch", "branch", branch)
}

// activeBranch returns the branch this manager is synced to.
func (lm *LinkManager) activeBranch() string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.branch
}

// CreateLink writes a typed edge. When the relation declares an inverse, the
// inverse edge is materialized in the same transaction so both directions
// are always readable from the same branch state.
func (lm *LinkManager) CreateLink(ctx context.Context, spec LinkSpec) (*Link, error) {
	branch := lm.activeBranch()

	if err := lm.conns.GuardWrite(branch); err != nil {
		return nil, err
	}
	if err := validateLinkSpec(spec); err != nil {
		return nil, err
	}

	missing, err := lm.missingBlocks(ctx, branch, []string{spec.FromID, spec.ToID})
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, errors.Newf(errors.CodeNotFound,
			"block(s) %s not found on branch %q", strings.Join(missing, ", "), branch)
	}

	tx, err := lm.conns.Begin(ctx, branch, true)
	if err != nil {
		return nil, err
	}

	link, rows, err := lm.insertLinkTx(ctx, tx, spec)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit link: %w", err)
	}

	for i := 0; i < rows; i++ {
		lm.metrics.IncLinksWritten()
	}
	lm.bus.Emit(event.NewEvent(event.LinkCreated, map[string]interface{}{
		"link_id":  link.ID,
		"from_id":  link.FromID,
		"to_id":    link.ToID,
		"relation": link.Relation,
		"branch":   branch,
	}))
	return link, nil
}

// insertLinkTx writes the forward edge and, if the relation has an inverse,
// the mirrored edge. Returns the forward link and the number of rows written.
func (lm *LinkManager) insertLinkTx(ctx context.Context, tx vcs.Tx, spec LinkSpec) (*Link, int, error) {
	now := lm.now().UTC().Truncate(time.Second)
	inverse, hasInverse := InverseOf(spec.Relation)

	link := &Link{
		ID:        lm.newID(),
		FromID:    spec.FromID,
		ToID:      spec.ToID,
		Relation:  strings.TrimSpace(spec.Relation),
		Priority:  spec.Priority,
		CreatedBy: spec.CreatedBy,
		CreatedAt: now,
	}
	if hasInverse {
		link.InverseRelation = inverse
	}

	const insert = "INSERT INTO block_links (" + linkColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	if _, err := tx.ExecContext(ctx, insert,
		link.ID, link.FromID, link.ToID, link.Relation, link.InverseRelation,
		link.Priority, link.CreatedBy, link.CreatedAt); err != nil {
		return nil, 0, err
	}
	rows := 1

	if hasInverse {
		if _, err := tx.ExecContext(ctx, insert,
			lm.newID(), link.ToID, link.FromID, inverse, link.Relation,
			link.Priority, link.CreatedBy, now); err != nil {
			return nil, 0, err
		}
		rows = 2
	}
	return link, rows, nil
}

func validateLinkSpec(spec LinkSpec) error {
	if strings.TrimSpace(spec.FromID) == "" || strings.TrimSpace(spec.ToID) == "" {
		return errors.New(errors.CodeValidation, "link requires both from_id and to_id")
	}
	if spec.FromID == spec.ToID {
		return errors.Newf(errors.CodeValidation, "block %q cannot link to itself", spec.FromID)
	}
	if !KnownRelation(spec.Relation) {
		return errors.Newf(errors.CodeValidation, "unknown relation %q", spec.Relation).
			WithSuggestion("Use one of: " + strings.Join(KnownRelations(), ", "))
	}
	return nil
}

// BulkCreateLinks validates endpoint existence with a single batched query,
// then writes each spec independently. Specs referencing missing blocks are
// skipped with a recorded reason rather than failing the batch.
func (lm *LinkManager) BulkCreateLinks(ctx context.Context, specs []LinkSpec) (*Report, error) {
	lm.metrics.IncBulkOps()
	branch := lm.activeBranch()

	if err := lm.conns.GuardWrite(branch); err != nil {
		return nil, err
	}

	// One existence check over the whole batch, not one per item.
	idSet := make(map[string]struct{})
	var ids []string
	for _, spec := range specs {
		for _, id := range []string{spec.FromID, spec.ToID} {
			if id == "" {
				continue
			}
			if _, ok := idSet[id]; !ok {
				idSet[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	missing, err := lm.missingBlocks(ctx, branch, ids)
	if err != nil {
		return nil, err
	}
	missingSet := make(map[string]struct{}, len(missing))
	for _, id := range missing {
		missingSet[id] = struct{}{}
	}

	report := &Report{}
	for i, spec := range specs {
		if err := validateLinkSpec(spec); err != nil {
			report.addFailed(i, err)
			continue
		}
		if reason := missingReason(spec, missingSet); reason != "" {
			report.addSkipped(i, spec, reason)
			continue
		}

		tx, err := lm.conns.Begin(ctx, branch, true)
		if err != nil {
			report.addFailed(i, err)
			continue
		}
		link, rows, err := lm.insertLinkTx(ctx, tx, spec)
		if err != nil {
			tx.Rollback()
			report.addFailed(i, err)
			continue
		}
		if err := tx.Commit(); err != nil {
			report.addFailed(i, err)
			continue
		}
		report.addCreated(i, link.ID, rows, true)
		for n := 0; n < rows; n++ {
			lm.metrics.IncLinksWritten()
		}
	}
	return report, nil
}

func missingReason(spec LinkSpec, missing map[string]struct{}) string {
	var gone []string
	if _, ok := missing[spec.FromID]; ok {
		gone = append(gone, spec.FromID)
	}
	if _, ok := missing[spec.ToID]; ok {
		gone = append(gone, spec.ToID)
	}
	if len(gone) == 0 {
		return ""
	}
	return "referenced block(s) do not exist: " + strings.Join(gone, ", ")
}

// missingBlocks returns the subset of ids with no block row on the branch.
func (lm *LinkManager) missingBlocks(ctx context.Context, branch string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := lm.conns.Query(ctx, branch,
		"SELECT id FROM memory_blocks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Links returns the edges for a block in the given direction, ordered by
// priority then age. The result is always finite and never nil on success.
func (lm *LinkManager) Links(ctx context.Context, blockID string, dir Direction) ([]Link, error) {
	branch := lm.activeBranch()

	var where string
	var args []interface{}
	switch dir {
	case DirectionForward:
		where = "from_id = ?"
		args = []interface{}{blockID}
	case DirectionInverse:
		where = "to_id = ?"
		args = []interface{}{blockID}
	case DirectionBoth, "":
		where = "from_id = ? OR to_id = ?"
		args = []interface{}{blockID, blockID}
	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown link direction %q", dir)
	}

	rows, err := lm.conns.Query(ctx, branch,
		"SELECT "+linkColumns+" FROM block_links WHERE "+where+" ORDER BY priority, created_at", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]Link, 0)
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.FromID, &l.ToID, &l.Relation, &l.InverseRelation,
			&l.Priority, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Edges for a block with no row mean the deletion cascade was bypassed;
	// record the drift instead of silently returning orphans.
	if len(links) > 0 {
		missing, err := lm.missingBlocks(ctx, branch, []string{blockID})
		if err == nil && len(missing) > 0 {
			lm.monitor.MarkInconsistent(blockID,
				fmt.Sprintf("edges survive for block missing on branch %s", branch))
		}
	}
	return links, nil
}

// DeleteForTx removes every edge where the block is either endpoint, inside
// the caller's transaction. Used by the block store's deletion cascade.
func (lm *LinkManager) DeleteForTx(ctx context.Context, tx vcs.Tx, blockID string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"DELETE FROM block_links WHERE from_id = ? OR to_id = ?", blockID, blockID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
