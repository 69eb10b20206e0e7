package index

import (
	"context"
	"time"

	"github.com/memgit-oss/memgit/internal/event"
)

// Updater bridges lifecycle events to the semantic index. It registers as a
// non-blocking hook, so indexing happens off the write path and an index
// outage degrades search freshness without failing writes.
type Updater struct {
	index   Index
	timeout time.Duration
}

// NewUpdater creates an updater over the given index.
func NewUpdater(index Index) *Updater {
	return &Updater{index: index, timeout: 10 * time.Second}
}

// Hook returns the event hook to register on the bus.
func (u *Updater) Hook() *event.FuncHook {
	return event.NewFuncHook("semantic-index", []event.EventType{
		event.BlockCreated,
		event.BlockUpdated,
		event.BlockDeleted,
	}, false, u.handle)
}

func (u *Updater) handle(ev event.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()

	id, _ := ev.Data["block_id"].(string)
	if id == "" {
		return nil
	}

	if ev.Type == event.BlockDeleted {
		return u.index.Delete(ctx, []string{id})
	}

	content, _ := ev.Data["content"].(string)
	meta := map[string]any{"block_id": id}
	if branch, ok := ev.Data["branch"].(string); ok {
		meta["branch"] = branch
	}
	if ns, ok := ev.Data["namespace"].(string); ok {
		meta["namespace"] = ns
	}
	if typ, ok := ev.Data["type"].(string); ok {
		meta["type"] = typ
	}

	return u.index.Upsert(ctx, []Document{{ID: id, Content: content, Meta: meta}})
}
