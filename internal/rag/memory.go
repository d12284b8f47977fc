package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index using brute-force cosine similarity.
// It backs tests and single-node development (VECTOR_BACKEND=memory).
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
	dim     int
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]Record)}
}

// Upsert inserts or replaces records by ID. All vectors in the index must
// share one dimensionality.
func (m *MemoryIndex) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dim
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("memory index: record %s has dimension %d, index uses %d", r.ID, len(r.Vector), dim)
		}
	}

	m.dim = dim
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		m.records[r.ID] = r
	}
	return nil
}

// Search scores every record matching filter and returns the best topK.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim != 0 && len(vector) != m.dim {
		return nil, fmt.Errorf("memory index: query dimension %d, index uses %d", len(vector), m.dim)
	}

	matches := make([]Match, 0, len(m.records))
	for _, r := range m.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Score: cosine(vector, r.Vector), Metadata: r.Metadata})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// List returns up to limit records matching filter, ordered by ID, starting
// at the record whose ID is offset or the first one after it.
func (m *MemoryIndex) List(_ context.Context, filter Filter, limit int, offset string) ([]Match, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.records))
	for id, r := range m.records {
		if id >= offset && filter.Matches(r.Metadata) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	next := ""
	if limit > 0 && len(ids) > limit {
		next = ids[limit]
		ids = ids[:limit]
	}

	out := make([]Match, 0, len(ids))
	for _, id := range ids {
		out = append(out, Match{ID: id, Metadata: m.records[id].Metadata})
	}
	return out, next, nil
}

// Delete removes records by ID.
func (m *MemoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
