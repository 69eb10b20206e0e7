package memory

import (
	"context"

	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/vcs"
)

// Options configures an Engine.
type Options struct {
	ProtectedBranch  string // default "main"
	ActiveBranch     string // initial active branch; defaults to ProtectedBranch
	DefaultNamespace string // default "default"

	SchemaBranchPattern      string
	AllowAnyBranchMigrations bool

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Bus     *event.Bus
}

// Engine wires the persistence subsystems over one backend. All subsystems
// share the connection manager, so branch protection and branch switching
// are enforced in exactly one place.
type Engine struct {
	Conns      *ConnManager
	Namespaces *NamespaceValidator
	Blocks     *BlockStore
	Links      *LinkManager
	Migrations *MigrationRunner
	Monitor    *ConsistencyMonitor

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus
}

// NewEngine assembles an engine on the given backend.
func NewEngine(backend vcs.Backend, opts Options) (*Engine, error) {
	if opts.ProtectedBranch == "" {
		opts.ProtectedBranch = "main"
	}
	if opts.ActiveBranch == "" {
		opts.ActiveBranch = opts.ProtectedBranch
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewLogger(false, "text")
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics()
	}

	conns := NewConnManager(backend, opts.ProtectedBranch, opts.ActiveBranch, opts.Logger, opts.Metrics)
	monitor := NewConsistencyMonitor(conns, opts.Logger, opts.Bus)
	namespaces := NewNamespaceValidator(conns, opts.DefaultNamespace, opts.Logger, opts.Metrics, opts.Bus)
	links := NewLinkManager(conns, monitor, opts.Logger, opts.Metrics, opts.Bus)
	conns.Subscribe(links)

	blocks := NewBlockStore(conns, namespaces, opts.Logger, opts.Metrics, opts.Bus)
	blocks.SetLinkManager(links)

	runner, err := NewMigrationRunner(conns, opts.SchemaBranchPattern, opts.AllowAnyBranchMigrations, opts.Logger, opts.Bus)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Conns:      conns,
		Namespaces: namespaces,
		Blocks:     blocks,
		Links:      links,
		Migrations: runner,
		Monitor:    monitor,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		bus:        opts.Bus,
	}, nil
}

// SwitchBranch changes the active branch for every subsystem atomically
// from the caller's point of view.
func (e *Engine) SwitchBranch(ctx context.Context, branch string) error {
	return e.Conns.SwitchActiveBranch(ctx, branch)
}

// Metrics returns the engine's metrics collector.
func (e *Engine) Metrics() *telemetry.Metrics {
	return e.metrics
}

// Close releases every cached connection. The backend itself belongs to the
// caller.
func (e *Engine) Close() error {
	return e.Conns.Close()
}
