package event

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/memgit-oss/memgit/internal/telemetry"
)

// collectHook records handled events.
type collectHook struct {
	baseHook
	mu      sync.Mutex
	handled []Event
}

func newCollectHook(name string, events []EventType, blocking bool) *collectHook {
	return &collectHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
	}
}

func (h *collectHook) Handle(ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, ev)
	return nil
}

func (h *collectHook) events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.handled))
	copy(out, h.handled)
	return out
}

func TestBus_BlockingHookRuns(t *testing.T) {
	bus := NewBus(nil)
	hook := newCollectHook("collect", nil, true)
	bus.Register(hook)

	ev := NewEvent(BlockCreated, map[string]interface{}{"block_id": "b1"})
	if err := bus.Emit(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := hook.events()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != BlockCreated {
		t.Errorf("expected %s, got %s", BlockCreated, got[0].Type)
	}
}

func TestBus_EventFilter(t *testing.T) {
	bus := NewBus(nil)
	hook := newCollectHook("links-only", []EventType{LinkCreated}, true)
	bus.Register(hook)

	bus.Emit(NewEvent(BlockCreated, nil))
	bus.Emit(NewEvent(LinkCreated, nil))

	got := hook.events()
	if len(got) != 1 || got[0].Type != LinkCreated {
		t.Fatalf("expected exactly the link.created event, got %v", got)
	}
}

func TestBus_BlockingHookErrorPropagates(t *testing.T) {
	bus := NewBus(nil)
	bus.Register(NewFuncHook("failing", nil, true, func(Event) error {
		return fmt.Errorf("boom")
	}))

	if err := bus.Emit(NewEvent(MigrationApplied, nil)); err == nil {
		t.Fatal("expected blocking hook error to propagate")
	}
}

func TestBus_NonBlockingHookErrorContained(t *testing.T) {
	bus := NewBus(telemetry.NewLogger(false, "text"))

	done := make(chan struct{})
	bus.Register(NewFuncHook("failing-async", nil, false, func(Event) error {
		defer close(done)
		return fmt.Errorf("boom")
	}))

	if err := bus.Emit(NewEvent(BlockDeleted, nil)); err != nil {
		t.Fatalf("non-blocking hook error should not propagate: %v", err)
	}
	bus.Drain()

	select {
	case <-done:
	default:
		t.Fatal("non-blocking hook did not run before Drain returned")
	}
}

func TestBus_DrainWaitsForAsyncHooks(t *testing.T) {
	bus := NewBus(nil)

	done := make(chan struct{})
	bus.Register(NewFuncHook("slow", nil, false, func(Event) error {
		time.Sleep(20 * time.Millisecond)
		close(done)
		return nil
	}))

	bus.Emit(NewEvent(BlockCreated, nil))
	bus.Drain()

	select {
	case <-done:
	default:
		t.Fatal("Drain returned before the non-blocking hook finished")
	}
}

func TestBus_Disabled(t *testing.T) {
	bus := NewBus(nil)
	hook := newCollectHook("collect", nil, true)
	bus.Register(hook)
	bus.SetEnabled(false)

	bus.Emit(NewEvent(BlockCreated, nil))
	if len(hook.events()) != 0 {
		t.Error("disabled bus should not dispatch")
	}
}

func TestBus_NilSafe(t *testing.T) {
	var bus *Bus
	bus.Register(newCollectHook("x", nil, true))
	bus.SetEnabled(true)
	bus.Drain()
	if err := bus.Emit(NewEvent(BlockCreated, nil)); err != nil {
		t.Fatalf("nil bus should be a no-op, got %v", err)
	}
}
