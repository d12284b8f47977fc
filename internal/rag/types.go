// Package rag implements the retrieval side of the pipeline: typed vector
// records, the tenant-scoped vector store adapter, the similarity retriever
// with adaptive thresholds, and the index backends (Qdrant and in-memory).
//
// Every index operation is scoped by an exact-match metadata filter, so a
// tenant only ever sees its own fragments.
package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// Payload keys shared by every index backend.
const (
	keyContent    = "content"
	keyTitle      = "title"
	keyDocumentID = "documentId"
	keyTenantID   = "tenantId"
	keyFragmentID = "fragmentId"
)

// Metadata is the payload stored alongside every vector.
type Metadata struct {
	// Content is the fragment text, verbatim.
	Content string
	// Title is the section title of the fragment. May be empty.
	Title string
	// DocumentID identifies the source document within the tenant.
	DocumentID string
	// TenantID is the isolation boundary the fragment belongs to.
	TenantID string
}

// Validate reports a validation error when a required field is empty.
func (m Metadata) Validate() error {
	switch {
	case m.TenantID == "":
		return apperr.Validation("rag: metadata tenant id is required")
	case m.DocumentID == "":
		return apperr.Validation("rag: metadata document id is required")
	case strings.TrimSpace(m.Content) == "":
		return apperr.Validation("rag: metadata content is required")
	}
	return nil
}

// Record is one embedded fragment ready to be written to an index.
type Record struct {
	// ID is the fragment id (see FragmentID).
	ID string
	// Vector is the fragment embedding.
	Vector []float32
	// Metadata is the typed payload.
	Metadata Metadata
}

// NewRecord validates its inputs and returns a Record.
func NewRecord(id string, vector []float32, md Metadata) (Record, error) {
	if id == "" {
		return Record{}, apperr.Validation("rag: record id is required")
	}
	if len(vector) == 0 {
		return Record{}, apperr.Validation("rag: record %s has an empty vector", id)
	}
	if err := md.Validate(); err != nil {
		return Record{}, err
	}
	return Record{ID: id, Vector: vector, Metadata: md}, nil
}

// Match is a record returned by an index query. Score is zero for
// filter-only listings.
type Match struct {
	// ID is the fragment id.
	ID string
	// Score is the cosine similarity to the query vector.
	Score float32
	// Metadata is the stored payload.
	Metadata Metadata
}

// Filter selects records by exact metadata equality. Empty fields do not
// constrain the result; the zero Filter matches everything.
type Filter struct {
	// TenantID restricts results to one tenant.
	TenantID string
	// DocumentID restricts results to one document.
	DocumentID string
}

// Matches reports whether m satisfies the filter.
func (f Filter) Matches(m Metadata) bool {
	if f.TenantID != "" && m.TenantID != f.TenantID {
		return false
	}
	if f.DocumentID != "" && m.DocumentID != f.DocumentID {
		return false
	}
	return true
}

// Index is a vector index supporting similarity search and filter-only
// listing. Implementations must be safe to call from multiple goroutines.
type Index interface {
	// Upsert inserts or replaces records by ID in one batch.
	Upsert(ctx context.Context, records []Record) error
	// Search returns up to topK records matching filter, best score first.
	Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error)
	// List returns up to limit records matching filter starting at offset,
	// plus the offset of the following page. An empty offset starts at the
	// beginning; an empty next offset means the listing is exhausted. A limit
	// of zero or less returns every remaining record. Offsets are opaque.
	List(ctx context.Context, filter Filter, limit int, offset string) (page []Match, next string, err error)
	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error
	// Close releases any resources held by the index.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into embeddings parallel to texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// FragmentID returns the id of the seq-th fragment of a tenant's document.
// The id is plain ASCII; parts that needed sanitising carry a short hash of
// their original value so distinct inputs never collide.
func FragmentID(tenantID, documentID string, seq int) string {
	return fmt.Sprintf("%s::%s::%d", sanitize(tenantID), sanitize(documentID), seq)
}

// sanitize folds diacritics and replaces anything outside [A-Za-z0-9._-].
func sanitize(s string) string {
	// Transformers are stateful; build one per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	if out != s {
		out += "~" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(s)).String()[:8]
	}
	return out
}

// pointNamespace seeds the deterministic UUIDs used as index point ids.
var pointNamespace = uuid.MustParse("8a0f6c56-3b1e-4a53-9d1c-6a2f1f9e4c21")

// pointID maps a fragment id to a stable UUID so re-ingesting the same
// fragment replaces the previous point instead of adding a new one.
func pointID(fragmentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fragmentID)).String()
}
