// Package index feeds committed block content to a semantic side index.
// Indexing is fire-and-forget: the engine never waits on it, and an index
// failure never fails a write.
package index

import "context"

// Document is the indexable view of a memory block.
type Document struct {
	ID      string
	Content string
	Meta    map[string]any
}

// Embedder turns text into a vector. Supplied by the caller; the engine has
// no embedding model of its own.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the write surface of the semantic side index.
type Index interface {
	// Upsert inserts or replaces documents.
	Upsert(ctx context.Context, docs []Document) error

	// Delete removes documents by block id.
	Delete(ctx context.Context, ids []string) error

	// Ping verifies the index is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Noop is an Index that does nothing. Used when indexing is disabled.
type Noop struct{}

func (Noop) Upsert(context.Context, []Document) error { return nil }
func (Noop) Delete(context.Context, []string) error   { return nil }
func (Noop) Ping(context.Context) error               { return nil }
func (Noop) Close() error                             { return nil }
