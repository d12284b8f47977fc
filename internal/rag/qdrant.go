package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// scrollPageSize bounds a single Scroll round-trip during listing.
const scrollPageSize = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index on a Qdrant collection. Tenant and document
// filters use keyword payload indexes; listing uses Scroll, so no placeholder
// query vector is needed to enumerate a tenant's fragments.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant and ensures the collection and its
// payload indexes exist.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// Client exposes the gRPC client for health probes.
func (s *QdrantIndex) Client() *qdrant.Client { return s.client }

// ensureCollection creates the collection and the keyword indexes used by
// tenant/document filters if they do not already exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	wait := true
	for _, field := range []string{keyTenantID, keyDocumentID} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err)
		}
	}
	return nil
}

// Upsert writes records in a single batch and waits for the write to apply.
func (s *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				keyFragmentID: r.ID,
				keyContent:    r.Metadata.Content,
				keyTitle:      r.Metadata.Title,
				keyDocumentID: r.Metadata.DocumentID,
				keyTenantID:   r.Metadata.TenantID,
			}),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a filtered cosine similarity query.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	limit := uint64(topK) //nolint:gosec // topK is a small positive config value
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := matchFromPayload(r.GetPayload())
		m.Score = r.GetScore()
		matches = append(matches, m)
	}
	return matches, nil
}

// List scrolls through records matching filter from offset until limit is
// reached or the collection is exhausted. Offsets are point UUIDs as
// returned by Qdrant's next_page_offset.
func (s *QdrantIndex) List(ctx context.Context, filter Filter, limit int, offset string) ([]Match, string, error) {
	var (
		out    []Match
		cursor *qdrant.PointId
	)
	if offset != "" {
		cursor = qdrant.NewIDUUID(offset)
	}

	for limit <= 0 || len(out) < limit {
		page := uint32(scrollPageSize)
		if limit > 0 && limit-len(out) < scrollPageSize {
			page = uint32(limit - len(out)) //nolint:gosec // bounded by scrollPageSize
		}

		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Filter:         qdrantFilter(filter),
			Offset:         cursor,
			Limit:          &page,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, "", fmt.Errorf("qdrant: scroll failed: %w", err)
		}

		for _, p := range resp.GetResult() {
			out = append(out, matchFromPayload(p.GetPayload()))
		}

		cursor = resp.GetNextPageOffset()
		if cursor == nil || len(resp.GetResult()) == 0 {
			return out, "", nil
		}
	}
	return out, cursor.GetUuid(), nil
}

// Delete removes records by fragment id.
func (s *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointID(id)))
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// qdrantFilter converts a Filter into Qdrant must-match keyword conditions.
// It returns nil for the zero Filter.
func qdrantFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.TenantID != "" {
		must = append(must, qdrant.NewMatch(keyTenantID, f.TenantID))
	}
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch(keyDocumentID, f.DocumentID))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// matchFromPayload decodes the typed metadata stored by Upsert.
func matchFromPayload(p map[string]*qdrant.Value) Match {
	str := func(key string) string {
		if v, ok := p[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return Match{
		ID: str(keyFragmentID),
		Metadata: Metadata{
			Content:    str(keyContent),
			Title:      str(keyTitle),
			DocumentID: str(keyDocumentID),
			TenantID:   str(keyTenantID),
		},
	}
}
