// Package memgit provides the public API for the memgit memory engine.
//
// Example usage:
//
//	import "github.com/memgit-oss/memgit/pkg/memgit"
//
//	client, err := memgit.Open(".")
//	if err != nil { ... }
//	defer client.Close()
//
//	block, err := client.Remember(ctx, memgit.BlockSpec{
//		Type:    memgit.TypeKnowledge,
//		Content: "the deploy window is 14:00 UTC",
//	})
package memgit

import (
	"context"
	"fmt"

	"github.com/memgit-oss/memgit/internal/config"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/index"
	"github.com/memgit-oss/memgit/internal/memory"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/vcs"
)

// Re-exported types so callers do not import internal packages.
type (
	Block         = memory.Block
	BlockSpec     = memory.BlockSpec
	Patch         = memory.Patch
	Link          = memory.Link
	LinkSpec      = memory.LinkSpec
	Namespace     = memory.Namespace
	Direction     = memory.Direction
	CreateOptions = memory.CreateOptions
	Report        = memory.Report
	Migration     = memory.Migration
	Embedder      = index.Embedder
)

// Block types and link directions.
const (
	TypeKnowledge = memory.TypeKnowledge
	TypeTask      = memory.TypeTask
	TypeDocument  = memory.TypeDocument

	DirectionForward = memory.DirectionForward
	DirectionInverse = memory.DirectionInverse
	DirectionBoth    = memory.DirectionBoth
)

// Options tunes client construction beyond what memgit.yaml covers.
type Options struct {
	// Embedder supplies vectors for the semantic index. Required when the
	// configured index is enabled.
	Embedder index.Embedder
	// Verbose forces debug logging regardless of the configured level.
	Verbose bool
}

// Client is a configured engine over a live backend.
type Client struct {
	cfg     *config.Config
	backend vcs.Backend
	engine  *memory.Engine
	logger  *telemetry.Logger
	bus     *event.Bus
	idx     index.Index
}

// Open loads memgit.yaml from dir and connects to the configured backend.
func Open(dir string) (*Client, error) {
	return OpenWithOptions(dir, Options{})
}

// OpenWithOptions is Open with explicit options.
func OpenWithOptions(dir string, opts Options) (*Client, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newClient(cfg, opts)
}

// OpenWithConfig skips file discovery and uses the given configuration.
func OpenWithConfig(cfg *config.Config, opts Options) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return newClient(cfg, opts)
}

func newClient(cfg *config.Config, opts Options) (*Client, error) {
	verbose := opts.Verbose || cfg.Logging.Level == "debug"
	logger := telemetry.NewLogger(verbose, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			return nil, err
		}
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus(logger)
	if cfg.Hooks.Enabled {
		registerHooks(bus, cfg.Hooks.Hooks, logger)
	}

	idx, err := buildIndex(cfg, opts, bus)
	if err != nil {
		backend.Close()
		return nil, err
	}

	engine, err := memory.NewEngine(backend, memory.Options{
		ProtectedBranch:          cfg.Store.ProtectedBranch,
		ActiveBranch:             cfg.Store.DefaultBranch,
		DefaultNamespace:         cfg.Namespace.Default,
		SchemaBranchPattern:      cfg.Migrations.BranchPattern,
		AllowAnyBranchMigrations: cfg.Migrations.AllowAnyBranch,
		Logger:                   logger,
		Metrics:                  telemetry.NewMetrics(),
		Bus:                      bus,
	})
	if err != nil {
		idx.Close()
		backend.Close()
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		backend: backend,
		engine:  engine,
		logger:  logger,
		bus:     bus,
		idx:     idx,
	}, nil
}

func buildBackend(cfg *config.Config) (vcs.Backend, error) {
	switch cfg.Store.Driver {
	case "dolt":
		return vcs.NewDoltBackend(vcs.DoltConfig{
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			Database: cfg.Store.Database,
			SSL:      cfg.Store.SSL,
		})
	case "sqlite":
		return vcs.NewSQLiteBackend(cfg.Store.ProtectedBranch)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildIndex(cfg *config.Config, opts Options, bus *event.Bus) (index.Index, error) {
	if !cfg.Index.Enabled {
		return index.Noop{}, nil
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("the semantic index is enabled but no embedder was supplied")
	}

	idx, err := index.NewQdrant(cfg.Index.URL, cfg.Index.Collection, cfg.Index.VectorSize, opts.Embedder)
	if err != nil {
		return nil, err
	}
	if err := idx.EnsureCollection(context.Background()); err != nil {
		idx.Close()
		return nil, err
	}

	bus.Register(index.NewUpdater(idx).Hook())
	return idx, nil
}

func registerHooks(bus *event.Bus, hooks []config.HookConfig, logger *telemetry.Logger) {
	for _, hc := range hooks {
		events := make([]event.EventType, 0, len(hc.Events))
		for _, e := range hc.Events {
			events = append(events, event.EventType(e))
		}

		switch hc.Type {
		case "webhook":
			bus.Register(event.NewWebhookHook(hc.Name, hc.URL, events, hc.Blocking))
		case "log":
			bus.Register(event.NewLogHook(hc.Name, events, logger, hc.Level))
		}
	}
}

// Engine exposes the underlying engine for advanced callers.
func (c *Client) Engine() *memory.Engine {
	return c.engine
}

// Config returns the loaded configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Remember stores a new memory block.
func (c *Client) Remember(ctx context.Context, spec BlockSpec) (*Block, error) {
	return c.engine.Blocks.Create(ctx, spec, CreateOptions{})
}

// RememberAndCommit stores a block and immediately commits it.
func (c *Client) RememberAndCommit(ctx context.Context, spec BlockSpec, message string) (*Block, error) {
	return c.engine.Blocks.Create(ctx, spec, CreateOptions{AutoCommit: true, CommitMessage: message})
}

// Recall returns a block by id on the active branch.
func (c *Client) Recall(ctx context.Context, id string) (*Block, error) {
	return c.engine.Blocks.Get(ctx, "", id)
}

// Revise applies a partial update to a block.
func (c *Client) Revise(ctx context.Context, id string, patch Patch) (*Block, error) {
	return c.engine.Blocks.Update(ctx, id, patch, CreateOptions{})
}

// Forget deletes a block and every link touching it.
func (c *Client) Forget(ctx context.Context, id string) error {
	return c.engine.Blocks.Delete(ctx, id)
}

// LinkBlocks creates a typed link between two blocks.
func (c *Client) LinkBlocks(ctx context.Context, spec LinkSpec) (*Link, error) {
	return c.engine.Links.CreateLink(ctx, spec)
}

// LinksFor returns a block's edges in the given direction.
func (c *Client) LinksFor(ctx context.Context, blockID string, dir Direction) ([]Link, error) {
	return c.engine.Links.Links(ctx, blockID, dir)
}

// BulkRemember stores many blocks with independent per-item outcomes.
func (c *Client) BulkRemember(ctx context.Context, specs []BlockSpec, opts CreateOptions) (*Report, error) {
	return c.engine.Blocks.BulkCreate(ctx, specs, opts)
}

// BulkLink creates many links with independent per-item outcomes.
func (c *Client) BulkLink(ctx context.Context, specs []LinkSpec) (*Report, error) {
	return c.engine.Links.BulkCreateLinks(ctx, specs)
}

// CreateNamespace creates a namespace on the active branch.
func (c *Client) CreateNamespace(ctx context.Context, ns Namespace) (*Namespace, error) {
	return c.engine.Namespaces.Create(ctx, c.engine.Conns.ActiveBranch(), ns)
}

// Namespaces lists namespaces on the active branch.
func (c *Client) Namespaces(ctx context.Context) ([]Namespace, error) {
	return c.engine.Namespaces.List(ctx, c.engine.Conns.ActiveBranch())
}

// SwitchBranch changes the active branch for all operations.
func (c *Client) SwitchBranch(ctx context.Context, branch string) error {
	return c.engine.SwitchBranch(ctx, branch)
}

// CreateBranch forks a new branch from an existing one.
func (c *Client) CreateBranch(ctx context.Context, name, from string) error {
	if from == "" {
		from = c.engine.Conns.ActiveBranch()
	}
	return c.backend.CreateBranch(ctx, name, from)
}

// Branches lists all branches.
func (c *Client) Branches(ctx context.Context) ([]string, error) {
	return c.backend.ListBranches(ctx)
}

// ActiveBranch returns the branch all operations currently target.
func (c *Client) ActiveBranch() string {
	return c.engine.Conns.ActiveBranch()
}

// Commit creates a version-control commit of the active branch's working set.
func (c *Client) Commit(ctx context.Context, message string) (string, error) {
	return c.engine.Conns.VCSCommit(ctx, c.engine.Conns.ActiveBranch(), message)
}

// Migrate applies the builtin schema migrations to the branch.
func (c *Client) Migrate(ctx context.Context, branch string) (int, error) {
	return c.engine.Migrations.ApplyAll(ctx, branch, memory.BuiltinMigrations())
}

// Verify scans the active branch for drift and raises if any was recorded.
func (c *Client) Verify(ctx context.Context) error {
	if _, err := c.engine.Monitor.Scan(ctx, c.engine.Conns.ActiveBranch()); err != nil {
		return err
	}
	return c.engine.Monitor.RaiseIfInconsistent()
}

// Metrics returns a snapshot of engine counters.
func (c *Client) Metrics() map[string]int64 {
	return c.engine.Metrics().Snapshot()
}

// Close releases the engine, the index, and the backend. In-flight
// non-blocking hooks (index updates among them) are drained first.
func (c *Client) Close() error {
	c.bus.Drain()
	err := c.engine.Close()
	if cerr := c.idx.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := c.backend.Close(); cerr != nil && err == nil {
		err = cerr
	}
	c.logger.Close()
	return err
}
