package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memgit-oss/memgit/internal/errors"
	"github.com/memgit-oss/memgit/internal/event"
	"github.com/memgit-oss/memgit/internal/telemetry"
	"github.com/memgit-oss/memgit/internal/vcs"
)

// DefaultNamespace is the well-known namespace every deployment has. It is
// accepted without a store round-trip.
const DefaultNamespace = "default"

// NamespaceValidator gates every block write on namespace existence.
// Positive lookups are cached per (branch, namespace); the cache is primed
// by Create before the caller sees the acknowledgment, so a just-created
// namespace can never appear unknown.
type NamespaceValidator struct {
	conns     *ConnManager
	defaultNS string
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	bus       *event.Bus

	mu    sync.RWMutex
	cache map[string]struct{}
}

// NewNamespaceValidator creates a validator. defaultNS falls back to
// DefaultNamespace when empty.
func NewNamespaceValidator(conns *ConnManager, defaultNS string, logger *telemetry.Logger, metrics *telemetry.Metrics, bus *event.Bus) *NamespaceValidator {
	if defaultNS == "" {
		defaultNS = DefaultNamespace
	}
	return &NamespaceValidator{
		conns:     conns,
		defaultNS: defaultNS,
		logger:    logger,
		metrics:   metrics,
		bus:       bus,
		cache:     make(map[string]struct{}),
	}
}

// cacheKey scopes entries per branch so one caller context's namespaces
// never satisfy a lookup against a different branch.
func cacheKey(branch, id string) string {
	return branch + "\x00" + strings.ToLower(strings.TrimSpace(id))
}

// Validate fails with UNKNOWN_NAMESPACE unless the namespace exists on the
// branch. Existence checks are case-insensitive over both id and slug.
func (v *NamespaceValidator) Validate(ctx context.Context, branch, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New(errors.CodeValidation, "namespace id is required")
	}

	// Fast path: the default namespace needs no I/O.
	if strings.EqualFold(id, v.defaultNS) {
		return nil
	}

	key := cacheKey(branch, id)
	v.mu.RLock()
	_, hit := v.cache[key]
	v.mu.RUnlock()
	if hit {
		v.metrics.IncCacheHits()
		return nil
	}
	v.metrics.IncCacheMisses()

	rows, err := v.conns.Query(ctx, branch,
		"SELECT COUNT(*) FROM namespaces WHERE LOWER(id) = LOWER(?) OR LOWER(slug) = LOWER(?)",
		id, id)
	if err != nil {
		return err
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if count == 0 {
		return errors.Newf(errors.CodeUnknownNamespace,
			"namespace %q does not exist on branch %q", id, branch).
			WithSuggestion("Create the namespace before writing blocks into it")
	}

	v.mu.Lock()
	v.cache[key] = struct{}{}
	v.mu.Unlock()
	return nil
}

// Invalidate removes every cached entry for the namespace across branches.
// The single entry point for cache invalidation; called by Create.
func (v *NamespaceValidator) Invalidate(id string) {
	suffix := "\x00" + strings.ToLower(strings.TrimSpace(id))
	v.mu.Lock()
	defer v.mu.Unlock()
	for key := range v.cache {
		if strings.HasSuffix(key, suffix) {
			delete(v.cache, key)
		}
	}
}

// Create inserts a namespace on the branch and primes the validation cache
// before returning, so a block create that races the acknowledgment cannot
// observe a stale "unknown namespace".
func (v *NamespaceValidator) Create(ctx context.Context, branch string, ns Namespace) (*Namespace, error) {
	ns.Name = strings.TrimSpace(ns.Name)
	ns.Slug = strings.ToLower(strings.TrimSpace(ns.Slug))
	if ns.Name == "" {
		return nil, errors.New(errors.CodeValidation, "namespace name is required")
	}
	if ns.Slug == "" {
		ns.Slug = strings.ToLower(strings.ReplaceAll(ns.Name, " ", "-"))
	}
	if ns.ID == "" {
		ns.ID = ns.Slug
	}
	ns.CreatedAt = time.Now().UTC()

	_, err := v.conns.Exec(ctx, branch,
		"INSERT INTO namespaces (id, name, slug, description, created_at) VALUES (?, ?, ?, ?, ?)",
		true, ns.ID, ns.Name, ns.Slug, ns.Description, ns.CreatedAt)
	if err != nil {
		if vcs.IsAlreadyExists(err) {
			return nil, errors.Newf(errors.CodeValidation,
				"namespace %q already exists on branch %q", ns.Slug, branch)
		}
		return nil, err
	}

	// Prime before acknowledging: the id and the slug both resolve.
	v.mu.Lock()
	v.cache[cacheKey(branch, ns.ID)] = struct{}{}
	v.cache[cacheKey(branch, ns.Slug)] = struct{}{}
	v.mu.Unlock()

	v.logger.Info("created namespace", "namespace", ns.Slug, "branch", branch)
	v.bus.Emit(event.NewEvent(event.NamespaceCreated, map[string]interface{}{
		"namespace_id": ns.ID,
		"branch":       branch,
	}))
	return &ns, nil
}

// Get returns a namespace by id or slug, case-insensitive.
func (v *NamespaceValidator) Get(ctx context.Context, branch, id string) (*Namespace, error) {
	rows, err := v.conns.Query(ctx, branch,
		"SELECT id, name, slug, description, created_at FROM namespaces WHERE LOWER(id) = LOWER(?) OR LOWER(slug) = LOWER(?)",
		id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Newf(errors.CodeUnknownNamespace,
			"namespace %q does not exist on branch %q", id, branch)
	}

	var ns Namespace
	if err := rows.Scan(&ns.ID, &ns.Name, &ns.Slug, &ns.Description, &ns.CreatedAt); err != nil {
		return nil, err
	}
	return &ns, nil
}

// List returns all namespaces on the branch.
func (v *NamespaceValidator) List(ctx context.Context, branch string) ([]Namespace, error) {
	rows, err := v.conns.Query(ctx, branch,
		"SELECT id, name, slug, description, created_at FROM namespaces ORDER BY slug")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Namespace
	for rows.Next() {
		var ns Namespace
		if err := rows.Scan(&ns.ID, &ns.Name, &ns.Slug, &ns.Description, &ns.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// newID generates a fresh identifier. Shared by the block and link stores.
func newID() string {
	return uuid.New().String()
}
