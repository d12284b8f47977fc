package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/retry"
	"github.com/54b3r/ragbot-go/internal/segment"
)

const (
	// DefaultListCap is the page size used when walking the index and the
	// most distinct documents ListDocuments returns.
	DefaultListCap = 1000

	// defaultEmbedBatch is the number of fragments sent per embedding call.
	defaultEmbedBatch = 32

	// defaultEmbedConcurrency is the number of embedding calls in flight.
	defaultEmbedConcurrency = 4

	// maxDeleteRounds stops DeleteByDocument if the index keeps returning ids.
	maxDeleteRounds = 100
)

// errStalledListing is returned when an index hands back the offset it was given.
var errStalledListing = errors.New("listing offset did not advance")

// StoreConfig tunes the vector store adapter.
type StoreConfig struct {
	// ListCap is the listing page size and the cap on distinct documents
	// returned by ListDocuments. Defaults to DefaultListCap.
	ListCap int
	// EmbedBatchSize is the number of texts per embedding call.
	EmbedBatchSize int
	// EmbedConcurrency is the number of embedding calls in flight.
	EmbedConcurrency int
	// Retry wraps every embedding and index call.
	Retry retry.Policy
}

// Store is the tenant-scoped vector store adapter. It owns fragment
// embedding, record construction and the document-level operations built
// on top of a raw Index.
type Store struct {
	index    Index
	embedder Embedder
	cfg      StoreConfig
}

// NewStore constructs a Store. A nil cfg uses defaults with no retries.
func NewStore(index Index, embedder Embedder, cfg *StoreConfig) (*Store, error) {
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &StoreConfig{Retry: retry.None()}
	}
	c := *cfg
	if c.ListCap <= 0 {
		c.ListCap = DefaultListCap
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = defaultEmbedBatch
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = defaultEmbedConcurrency
	}
	return &Store{index: index, embedder: embedder, cfg: c}, nil
}

// Exists reports whether any fragment of the tenant's document is indexed.
func (s *Store) Exists(ctx context.Context, tenantID, documentID string) (bool, error) {
	if err := requireIDs(tenantID, documentID); err != nil {
		return false, err
	}
	matches, _, err := s.list(ctx, Filter{TenantID: tenantID, DocumentID: documentID}, 1, "")
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Upsert embeds every fragment once and writes all records in one batch.
// It returns the number of records written. Any embedding or write failure
// is returned; the caller decides whether to retry or clean up.
func (s *Store) Upsert(ctx context.Context, tenantID, documentID string, fragments []segment.Fragment) (int, error) {
	if err := requireIDs(tenantID, documentID); err != nil {
		return 0, err
	}
	if len(fragments) == 0 {
		return 0, nil
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	records := make([]Record, 0, len(fragments))
	for i, f := range fragments {
		rec, err := NewRecord(FragmentID(tenantID, documentID, i), vectors[i], Metadata{
			Content:    f.Text,
			Title:      f.Title,
			DocumentID: documentID,
			TenantID:   tenantID,
		})
		if err != nil {
			return 0, err
		}
		records = append(records, rec)
	}

	err = retry.Do(ctx, s.cfg.Retry, "vector upsert", func(ctx context.Context) error {
		return apperr.Dependency("rag: upsert", s.index.Upsert(ctx, records))
	})
	if err != nil {
		return 0, err
	}

	logging.FromContext(ctx).Debug("rag: upserted fragments",
		slog.String("tenant", tenantID),
		slog.String("document", documentID),
		slog.Int("records", len(records)),
	)
	return len(records), nil
}

// DeleteByDocument removes every fragment of the tenant's document and
// returns how many were deleted. Zero matches is not an error.
func (s *Store) DeleteByDocument(ctx context.Context, tenantID, documentID string) (int, error) {
	if err := requireIDs(tenantID, documentID); err != nil {
		return 0, err
	}

	filter := Filter{TenantID: tenantID, DocumentID: documentID}
	total := 0
	for range maxDeleteRounds {
		matches, next, err := s.list(ctx, filter, s.cfg.ListCap, "")
		if err != nil {
			return total, err
		}
		if len(matches) == 0 {
			return total, nil
		}

		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		err = retry.Do(ctx, s.cfg.Retry, "vector delete", func(ctx context.Context) error {
			return apperr.Dependency("rag: delete", s.index.Delete(ctx, ids))
		})
		if err != nil {
			return total, err
		}
		total += len(ids)

		if next == "" {
			return total, nil
		}
	}
	return total, apperr.Dependency("rag: delete", fmt.Errorf("document %s still has fragments after %d rounds", documentID, maxDeleteRounds))
}

// ListDocuments returns the distinct document ids indexed for tenantID,
// sorted. It walks every page of the tenant's fragments and stops once
// ListCap distinct documents have been seen.
func (s *Store) ListDocuments(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID == "" {
		return nil, apperr.Validation("rag: tenant id is required")
	}
	docs := newKeySet(func(m Metadata) string { return m.DocumentID })
	err := s.scan(ctx, Filter{TenantID: tenantID}, func(page []Match) bool {
		return docs.add(page, s.cfg.ListCap)
	})
	if err != nil {
		return nil, err
	}
	return docs.sorted(), nil
}

// ListTenantsForDocument returns every tenant id that has fragments of
// documentID, sorted. The whole listing is walked; there is no cap.
func (s *Store) ListTenantsForDocument(ctx context.Context, documentID string) ([]string, error) {
	if documentID == "" {
		return nil, apperr.Validation("rag: document id is required")
	}
	tenants := newKeySet(func(m Metadata) string { return m.TenantID })
	err := s.scan(ctx, Filter{DocumentID: documentID}, func(page []Match) bool {
		return tenants.add(page, 0)
	})
	if err != nil {
		return nil, err
	}
	return tenants.sorted(), nil
}

// scan pages through every record matching filter, ListCap records at a
// time, until visit returns false or the index is exhausted.
func (s *Store) scan(ctx context.Context, filter Filter, visit func([]Match) bool) error {
	offset := ""
	for {
		page, next, err := s.list(ctx, filter, s.cfg.ListCap, offset)
		if err != nil {
			return err
		}
		if !visit(page) || next == "" {
			return nil
		}
		if next == offset {
			return apperr.Dependency("rag: list", errStalledListing)
		}
		offset = next
	}
}

// list fetches one listing page under the retry policy.
func (s *Store) list(ctx context.Context, filter Filter, limit int, offset string) ([]Match, string, error) {
	type result struct {
		page []Match
		next string
	}
	r, err := retry.Value(ctx, s.cfg.Retry, "vector list", func(ctx context.Context) (result, error) {
		page, next, err := s.index.List(ctx, filter, limit, offset)
		return result{page: page, next: next}, apperr.Dependency("rag: list", err)
	})
	return r.page, r.next, err
}

// embedAll embeds texts in batches with bounded concurrency and checks that
// every vector has the same dimensionality.
func (s *Store) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)

	for start := 0; start < len(texts); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(texts))
		g.Go(func() error {
			batch := texts[start:end]
			out, err := retry.Value(gctx, s.cfg.Retry, "embed fragments", func(ctx context.Context) ([][]float32, error) {
				v, err := s.embedder.Embed(ctx, batch)
				return v, apperr.Dependency("rag: embed", err)
			})
			if err != nil {
				return err
			}
			if len(out) != len(batch) {
				return apperr.Dependency("rag: embed", fmt.Errorf("expected %d embeddings, got %d", len(batch), len(out)))
			}
			copy(vectors[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, apperr.Dependency("rag: embed", fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim))
		}
	}
	return vectors, nil
}

// requireIDs validates the tenant/document pair every scoped call needs.
func requireIDs(tenantID, documentID string) error {
	if tenantID == "" {
		return apperr.Validation("rag: tenant id is required")
	}
	if documentID == "" {
		return apperr.Validation("rag: document id is required")
	}
	return nil
}

// keySet collects the distinct non-empty values of one metadata field.
type keySet struct {
	key  func(Metadata) string
	seen map[string]struct{}
}

func newKeySet(key func(Metadata) string) *keySet {
	return &keySet{key: key, seen: make(map[string]struct{})}
}

// add records the keys found in page and reports whether to keep scanning.
// A positive limit stops the scan once that many distinct keys are held.
func (k *keySet) add(page []Match, limit int) bool {
	for _, m := range page {
		v := k.key(m.Metadata)
		if v == "" {
			continue
		}
		k.seen[v] = struct{}{}
		if limit > 0 && len(k.seen) >= limit {
			return false
		}
	}
	return true
}

// sorted returns the collected keys in ascending order, never nil.
func (k *keySet) sorted() []string {
	out := make([]string, 0, len(k.seen))
	for v := range k.seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
