// Package testutil boots a fully migrated engine on the SQLite backend for
// tests. The layout mirrors a real deployment: a protected canonical branch,
// a schema branch carrying the migrations, and a working branch forked from
// the schema branch.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/memory"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/vcs"
)

const (
	ProtectedBranch = "main"
	SchemaBranch    = "schema/bootstrap"
	WorkBranch      = "feature-1"
)

// Harness is a ready-to-use engine with event capture.
type Harness struct {
	Backend *vcs.SQLiteBackend
	Engine  *memory.Engine
	Bus     *event.Bus
	Logger  *telemetry.Logger

	mu     sync.Mutex
	events []event.Event
}

// NewHarness creates the branch layout, applies the builtin migrations on the
// schema branch, forks the working branch from it, and switches the engine to
// the working branch. Cleanup is registered on t.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return newHarness(t, false)
}

// NewVerboseHarness is NewHarness with debug logging, which also enables the
// consistency monitor's full scan.
func NewVerboseHarness(t *testing.T) *Harness {
	t.Helper()
	return newHarness(t, true)
}

func newHarness(t *testing.T, verbose bool) *Harness {
	t.Helper()
	ctx := context.Background()

	backend, err := vcs.NewSQLiteBackend(ProtectedBranch)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	logger := telemetry.NewLogger(verbose, "text")
	bus := event.NewBus(logger)

	h := &Harness{Backend: backend, Bus: bus, Logger: logger}
	// Blocking so tests can assert on events without racing goroutines.
	bus.Register(event.NewFuncHook("test-capture", nil, true, func(ev event.Event) error {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
		return nil
	}))

	engine, err := memory.NewEngine(backend, memory.Options{
		ProtectedBranch: ProtectedBranch,
		Logger:          logger,
		Bus:             bus,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	h.Engine = engine

	if err := backend.CreateBranch(ctx, SchemaBranch, ProtectedBranch); err != nil {
		t.Fatalf("failed to create schema branch: %v", err)
	}
	if _, err := engine.Migrations.ApplyAll(ctx, SchemaBranch, memory.BuiltinMigrations()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	if err := backend.CreateBranch(ctx, WorkBranch, SchemaBranch); err != nil {
		t.Fatalf("failed to create working branch: %v", err)
	}
	if err := engine.SwitchBranch(ctx, WorkBranch); err != nil {
		t.Fatalf("failed to switch to working branch: %v", err)
	}
	h.ResetEvents()

	t.Cleanup(func() {
		engine.Close()
		backend.Close()
	})
	return h
}

// Events returns captured events, optionally filtered by type.
func (h *Harness) Events(types ...event.EventType) []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(types) == 0 {
		out := make([]event.Event, len(h.events))
		copy(out, h.events)
		return out
	}

	var out []event.Event
	for _, ev := range h.events {
		for _, typ := range types {
			if ev.Type == typ {
				out = append(out, ev)
			}
		}
	}
	return out
}

// ResetEvents discards captured events.
func (h *Harness) ResetEvents() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}

// AssertEventEmitted fails the test unless at least one event of the type was
// captured.
func (h *Harness) AssertEventEmitted(t *testing.T, typ event.EventType) {
	t.Helper()
	if len(h.Events(typ)) == 0 {
		t.Fatalf("expected event %q to be emitted", typ)
	}
}

// MustCreateNamespace creates a namespace on the working branch.
func (h *Harness) MustCreateNamespace(t *testing.T, name string) *memory.Namespace {
	t.Helper()
	ns, err := h.Engine.Namespaces.Create(context.Background(), WorkBranch, memory.Namespace{Name: name})
	if err != nil {
		t.Fatalf("failed to create namespace %q: %v", name, err)
	}
	return ns
}

// MustCreateBlock creates a staged knowledge block on the working branch.
func (h *Harness) MustCreateBlock(t *testing.T, content string) *memory.Block {
	t.Helper()
	block, err := h.Engine.Blocks.Create(context.Background(), memory.BlockSpec{
		Type:    memory.TypeKnowledge,
		Content: content,
	}, memory.CreateOptions{})
	if err != nil {
		t.Fatalf("failed to create block: %v", err)
	}
	return block
}
