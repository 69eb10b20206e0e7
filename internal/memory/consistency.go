package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/telemetry"
)

// InconsistencyRecord describes one detected divergence between the block
// table and the link graph.
type InconsistencyRecord struct {
	BlockID    string    `json:"block_id"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}

// ConsistencyMonitor surfaces drift between the block store and the link
// manager instead of hiding it. Recording and raising are always active;
// only the expensive full scan is gated behind verbose logging.
type ConsistencyMonitor struct {
	conns  *ConnManager
	logger *telemetry.Logger
	bus    *event.Bus

	mu      sync.Mutex
	records []InconsistencyRecord
}

// NewConsistencyMonitor creates a monitor.
func NewConsistencyMonitor(conns *ConnManager, logger *telemetry.Logger, bus *event.Bus) *ConsistencyMonitor {
	return &ConsistencyMonitor{conns: conns, logger: logger, bus: bus}
}

// MarkInconsistent records a structured inconsistency for the block.
func (m *ConsistencyMonitor) MarkInconsistent(blockID, reason string) {
	rec := InconsistencyRecord{
		BlockID:    blockID,
		Reason:     reason,
		DetectedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()

	m.logger.Warn("inconsistency detected", "block_id", blockID, "reason", reason)
	m.bus.Emit(event.NewEvent(event.ConsistencyViolation, map[string]interface{}{
		"block_id": blockID,
		"reason":   reason,
	}))
}

// Records returns a copy of all recorded inconsistencies.
func (m *ConsistencyMonitor) Records() []InconsistencyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InconsistencyRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Reset clears recorded inconsistencies, typically after remediation.
func (m *ConsistencyMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}

// RaiseIfInconsistent fails with INCONSISTENT_STATE when anything has been
// recorded. This path is always active, regardless of log configuration.
func (m *ConsistencyMonitor) RaiseIfInconsistent() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) == 0 {
		return nil
	}

	first := m.records[0]
	err := errors.Newf(errors.CodeInconsistentState,
		"%d inconsistency record(s); first: block %q (%s, detected %s)",
		len(m.records), first.BlockID, first.Reason, first.DetectedAt.Format(time.RFC3339))
	return err.WithSuggestion("Inspect the link graph for the listed blocks and re-run a consistency scan after repair")
}

// Scan cross-checks the link graph against the block table on the branch and
// records every orphaned endpoint. The scan is an expensive diagnostic and
// only runs under verbose logging; it returns the number of records added.
func (m *ConsistencyMonitor) Scan(ctx context.Context, branch string) (int, error) {
	if !m.logger.Verbose() {
		m.logger.Debug("consistency scan skipped; verbose logging disabled")
		return 0, nil
	}

	rows, err := m.conns.Query(ctx, branch, `
		SELECT l.from_id, l.to_id, bf.id, bt.id
		FROM block_links l
		LEFT JOIN memory_blocks bf ON l.from_id = bf.id
		LEFT JOIN memory_blocks bt ON l.to_id = bt.id
		WHERE bf.id IS NULL OR bt.id IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to scan link graph on branch %s: %w", branch, err)
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var fromID, toID string
		var fromPresent, toPresent *string
		if err := rows.Scan(&fromID, &toID, &fromPresent, &toPresent); err != nil {
			return found, err
		}
		if fromPresent == nil {
			m.MarkInconsistent(fromID, fmt.Sprintf("link references source block missing on branch %s", branch))
			found++
		}
		if toPresent == nil {
			m.MarkInconsistent(toID, fmt.Sprintf("link references target block missing on branch %s", branch))
			found++
		}
	}
	return found, rows.Err()
}
