package event

import (
	"fmt"
	"sync"

	"github.com/memgit-oss/memgit/internal/telemetry"
)

// Bus fans engine events out to registered hooks.
//
// Blocking hooks run sequentially in registration order and the first
// failure aborts the emit. Non-blocking hooks run in goroutines the bus
// tracks, so Drain can wait for in-flight work (the semantic index updater
// rides this path) before shutdown. A nil Bus is safe to use and drops
// everything.
type Bus struct {
	mu      sync.RWMutex
	hooks   []Hook
	enabled bool
	logger  *telemetry.Logger

	inflight sync.WaitGroup
}

// NewBus creates an enabled bus. A nil logger silences async hook failures.
func NewBus(logger *telemetry.Logger) *Bus {
	return &Bus{enabled: true, logger: logger}
}

// Register adds a hook.
func (b *Bus) Register(h Hook) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// SetEnabled controls whether Emit dispatches anything.
func (b *Bus) SetEnabled(enabled bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Emit dispatches ev to every hook whose filter matches. The error, if any,
// comes from a blocking hook; non-blocking hook failures are logged and
// never surface here.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	if !b.enabled {
		b.mu.RUnlock()
		return nil
	}
	hooks := make([]Hook, len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.RUnlock()

	for _, h := range hooks {
		if !h.Matches(ev.Type) {
			continue
		}
		if h.IsBlocking() {
			if err := h.Handle(ev); err != nil {
				return fmt.Errorf("blocking hook %s failed: %w", h.Name(), err)
			}
			continue
		}
		b.inflight.Add(1)
		go b.dispatchAsync(h, ev)
	}
	return nil
}

func (b *Bus) dispatchAsync(h Hook, ev Event) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.warn("hook panicked", "hook", h.Name(), "event", string(ev.Type), "panic", r)
		}
	}()
	if err := h.Handle(ev); err != nil {
		b.warn("hook failed", "hook", h.Name(), "event", string(ev.Type), "error", err)
	}
}

func (b *Bus) warn(msg string, keyvals ...interface{}) {
	if b.logger != nil {
		b.logger.Warn(msg, keyvals...)
	}
}

// Drain blocks until every non-blocking hook dispatched so far has
// returned. Call before tearing down the resources those hooks touch.
func (b *Bus) Drain() {
	if b == nil {
		return
	}
	b.inflight.Wait()
}
