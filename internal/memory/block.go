package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/telemetry"
)

// blockColumns is the full column list. Inserts always name every column so
// a schema change can never silently drop a field from the statement.
const blockColumns = "id, block_type, content, metadata, namespace_id, tags, created_by, created_at, updated_at, commit_state"

// requiredMetadata maps block types to metadata fields they must carry.
var requiredMetadata = map[string][]string{
	TypeDocument: {"title"},
}

var validTypes = map[string]bool{
	TypeKnowledge: true,
	TypeTask:      true,
	TypeDocument:  true,
}

// BlockStore performs CRUD on memory blocks. Every write goes through the
// namespace validator and the connection manager; deletes cascade link
// cleanup through the link manager in the same transaction.
type BlockStore struct {
	conns      *ConnManager
	namespaces *NamespaceValidator
	links      *LinkManager
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	bus        *event.Bus

	now   func() time.Time
	newID func() string
}

// NewBlockStore creates a block store. The link manager is attached
// afterwards via SetLinkManager because the two reference each other.
func NewBlockStore(conns *ConnManager, namespaces *NamespaceValidator, logger *telemetry.Logger, metrics *telemetry.Metrics, bus *event.Bus) *BlockStore {
	return &BlockStore{
		conns:      conns,
		namespaces: namespaces,
		logger:     logger,
		metrics:    metrics,
		bus:        bus,
		now:        time.Now,
		newID:      newID,
	}
}

// SetLinkManager attaches the link manager used for deletion cascades.
func (s *BlockStore) SetLinkManager(lm *LinkManager) {
	s.links = lm
}

func validateSpec(spec BlockSpec) error {
	blockType := strings.TrimSpace(spec.Type)
	if !validTypes[blockType] {
		return errors.Newf(errors.CodeValidation, "unknown block type %q", spec.Type).
			WithSuggestion("Use one of: knowledge, task, document")
	}
	// Required fields must be non-empty strings; nil or non-string values
	// do not satisfy the requirement.
	for _, field := range requiredMetadata[blockType] {
		str, ok := spec.Metadata[field].(string)
		if !ok || strings.TrimSpace(str) == "" {
			return errors.Newf(errors.CodeValidation,
				"block type %q requires metadata field %q", blockType, field)
		}
	}
	return nil
}

// Create validates, writes, and optionally commits a new block, returning
// the stored block with its generated id and timestamps.
func (s *BlockStore) Create(ctx context.Context, spec BlockSpec, opts CreateOptions) (*Block, error) {
	branch := spec.Branch
	if branch == "" {
		branch = s.conns.ActiveBranch()
	}

	// Fail fast on the protected branch, before any validation I/O.
	if err := s.conns.GuardWrite(branch); err != nil {
		return nil, err
	}

	block, err := s.createOne(ctx, branch, spec)
	if err != nil {
		return nil, err
	}

	if opts.AutoCommit {
		if err := s.commitBlocks(ctx, branch, []string{block.ID}, opts.CommitMessage); err != nil {
			return nil, err
		}
		block.CommitState = CommitStateCommitted
	}
	return block, nil
}

// createOne writes a single staged block row. Caller has already guarded
// the branch.
func (s *BlockStore) createOne(ctx context.Context, branch string, spec BlockSpec) (*Block, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	namespaceID := strings.TrimSpace(spec.NamespaceID)
	if namespaceID == "" {
		namespaceID = DefaultNamespace
	}
	if err := s.namespaces.Validate(ctx, branch, namespaceID); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	block := &Block{
		ID:          s.newID(),
		Type:        strings.TrimSpace(spec.Type),
		Content:     spec.Content,
		Metadata:    spec.Metadata,
		NamespaceID: namespaceID,
		Branch:      branch,
		Tags:        spec.Tags,
		CreatedBy:   spec.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		CommitState: CommitStateStaged,
	}

	metadataJSON, tagsJSON, err := marshalBlockFields(block.Metadata, block.Tags)
	if err != nil {
		return nil, err
	}

	start := s.now()
	_, err = s.conns.Exec(ctx, branch,
		"INSERT INTO memory_blocks ("+blockColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		true,
		block.ID, block.Type, block.Content, metadataJSON, block.NamespaceID,
		tagsJSON, block.CreatedBy, block.CreatedAt, block.UpdatedAt, block.CommitState)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordWriteDuration(s.now().Sub(start))
	s.metrics.IncBlocksWritten()

	s.logger.Debug("created block", "block_id", block.ID, "branch", branch, "namespace", namespaceID)
	s.bus.Emit(event.NewEvent(event.BlockCreated, map[string]interface{}{
		"block_id":  block.ID,
		"branch":    branch,
		"namespace": namespaceID,
		"type":      block.Type,
		"content":   block.Content,
	}))
	return block, nil
}

// commitBlocks flips rows to committed and creates a version-control commit.
func (s *BlockStore) commitBlocks(ctx context.Context, branch string, ids []string, message string) error {
	if message == "" {
		message = fmt.Sprintf("memgit: commit %d block(s)", len(ids))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, CommitStateCommitted)
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := s.conns.Exec(ctx, branch,
		"UPDATE memory_blocks SET commit_state = ? WHERE id IN ("+placeholders+")",
		true, args...); err != nil {
		return err
	}

	if _, err := s.conns.VCSCommit(ctx, branch, message); err != nil {
		return fmt.Errorf("failed to commit branch %s: %w", branch, err)
	}
	return nil
}

// Get returns the block by id on the given branch (active branch if empty).
func (s *BlockStore) Get(ctx context.Context, branch, id string) (*Block, error) {
	if branch == "" {
		branch = s.conns.ActiveBranch()
	}

	rows, err := s.conns.Query(ctx, branch,
		"SELECT "+blockColumns+" FROM memory_blocks WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Newf(errors.CodeNotFound,
			"block %q not found on branch %q", id, branch)
	}
	return scanBlock(rows, branch)
}

// Update applies a partial update to a block on the active branch.
func (s *BlockStore) Update(ctx context.Context, id string, patch Patch, opts CreateOptions) (*Block, error) {
	branch := s.conns.ActiveBranch()
	if err := s.conns.GuardWrite(branch); err != nil {
		return nil, err
	}

	block, err := s.Get(ctx, branch, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		block.Content = *patch.Content
	}
	if patch.Metadata != nil {
		block.Metadata = patch.Metadata
	}
	if patch.Tags != nil {
		block.Tags = patch.Tags
	}
	if err := validateSpec(BlockSpec{Type: block.Type, Metadata: block.Metadata}); err != nil {
		return nil, err
	}

	block.UpdatedAt = s.now().UTC().Truncate(time.Second)
	block.CommitState = CommitStateStaged

	metadataJSON, tagsJSON, err := marshalBlockFields(block.Metadata, block.Tags)
	if err != nil {
		return nil, err
	}

	res, err := s.conns.Exec(ctx, branch,
		"UPDATE memory_blocks SET content = ?, metadata = ?, tags = ?, updated_at = ?, commit_state = ? WHERE id = ?",
		true, block.Content, metadataJSON, tagsJSON, block.UpdatedAt, block.CommitState, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Newf(errors.CodeNotFound, "block %q not found on branch %q", id, branch)
	}

	if opts.AutoCommit {
		if err := s.commitBlocks(ctx, branch, []string{id}, opts.CommitMessage); err != nil {
			return nil, err
		}
		block.CommitState = CommitStateCommitted
	}

	s.bus.Emit(event.NewEvent(event.BlockUpdated, map[string]interface{}{
		"block_id": id,
		"branch":   branch,
		"content":  block.Content,
	}))
	return block, nil
}

// Delete removes a block and every link touching it in one transaction, so
// no orphan edges survive the row.
func (s *BlockStore) Delete(ctx context.Context, id string) error {
	branch := s.conns.ActiveBranch()

	tx, err := s.conns.Begin(ctx, branch, true)
	if err != nil {
		return err
	}

	removed, err := s.links.DeleteForTx(ctx, tx, id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to cascade link cleanup for block %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM memory_blocks WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return errors.Newf(errors.CodeNotFound, "block %q not found on branch %q", id, branch)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of block %s: %w", id, err)
	}

	s.metrics.IncBlocksDeleted()
	s.logger.Debug("deleted block", "block_id", id, "branch", branch, "links_removed", removed)
	s.bus.Emit(event.NewEvent(event.BlockDeleted, map[string]interface{}{
		"block_id": id,
		"branch":   branch,
	}))
	return nil
}

// BulkCreate writes each spec independently: item k failing neither stops
// later items nor rolls back earlier ones. The whole call aborts only on a
// batch-wide precondition failure (protected or missing branch).
func (s *BlockStore) BulkCreate(ctx context.Context, specs []BlockSpec, opts CreateOptions) (*Report, error) {
	s.metrics.IncBulkOps()
	branch := s.conns.ActiveBranch()

	if err := s.conns.GuardWrite(branch); err != nil {
		return nil, err
	}
	if _, err := s.conns.Acquire(ctx, branch); err != nil {
		return nil, err
	}

	report := &Report{}
	var created []string
	for i, spec := range specs {
		if spec.Branch != "" && spec.Branch != branch {
			report.addSkipped(i, spec, fmt.Sprintf("spec targets branch %q but batch runs on %q", spec.Branch, branch))
			continue
		}
		block, err := s.createOne(ctx, branch, spec)
		if err != nil {
			report.addFailed(i, err)
			continue
		}
		created = append(created, block.ID)
		report.addCreated(i, block.ID, 1, false)
	}

	if opts.AutoCommit && len(created) > 0 {
		if err := s.commitBlocks(ctx, branch, created, opts.CommitMessage); err != nil {
			return report, err
		}
	}
	return report, nil
}

func marshalBlockFields(metadata map[string]interface{}, tags []string) (string, string, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(metadataJSON), string(tagsJSON), nil
}

// scanBlock reads the full column list from the current row.
func scanBlock(rows interface {
	Scan(dest ...interface{}) error
}, branch string) (*Block, error) {
	var (
		block        Block
		metadataJSON string
		tagsJSON     string
	)
	err := rows.Scan(&block.ID, &block.Type, &block.Content, &metadataJSON,
		&block.NamespaceID, &tagsJSON, &block.CreatedBy,
		&block.CreatedAt, &block.UpdatedAt, &block.CommitState)
	if err != nil {
		return nil, err
	}

	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &block.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for block %s: %w", block.ID, err)
		}
	}
	if tagsJSON != "" && tagsJSON != "null" {
		if err := json.Unmarshal([]byte(tagsJSON), &block.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags for block %s: %w", block.ID, err)
		}
	}

	block.Branch = branch
	return &block, nil
}
