package index

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// Qdrant indexes block content in a Qdrant collection. Vectors come from the
// caller-supplied Embedder; block id and metadata ride along as payload.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
	vectorSize int
}

// NewQdrant connects to a Qdrant instance. urlStr is the HTTP endpoint
// ("http://localhost:6333"); the gRPC port is derived as HTTP port + 1.
func NewQdrant(urlStr, collection string, vectorSize int, embedder Embedder) (*Qdrant, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid index URL %q: %w", urlStr, err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if parsed.Port() != "" {
		if httpPort, err := strconv.Atoi(parsed.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index client: %w", err)
	}

	return &Qdrant{
		client:     client,
		collection: collection,
		embedder:   embedder,
		vectorSize: vectorSize,
	}, nil
}

// EnsureCollection creates the collection when missing.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", q.collection, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", q.collection, err)
	}
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		vec, err := q.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("failed to embed block %s: %w", doc.ID, err)
		}

		point := &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectors(vec...),
		}
		if len(doc.Meta) > 0 {
			point.Payload = qdrant.NewValueMap(doc.Meta)
		}
		points = append(points, point)
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d point(s): %w", len(points), err)
	}
	return nil
}

func (q *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d point(s): %w", len(ids), err)
	}
	return nil
}

func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("index unreachable: %w", err)
	}
	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}
