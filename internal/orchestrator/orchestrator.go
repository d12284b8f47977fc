// Package orchestrator runs the two pipelines of the knowledge base: document
// ingestion (extract, segment, replace the tenant's vectors) and query
// answering (retrieve, recall history, generate, remember). It also fronts
// the file and prompt operations exposed by the HTTP server and CLI.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/blob"
	"github.com/54b3r/ragbot-go/internal/extract"
	"github.com/54b3r/ragbot-go/internal/generator"
	"github.com/54b3r/ragbot-go/internal/logging"
	"github.com/54b3r/ragbot-go/internal/memory"
	"github.com/54b3r/ragbot-go/internal/profile"
	"github.com/54b3r/ragbot-go/internal/rag"
	"github.com/54b3r/ragbot-go/internal/segment"
)

// DefaultMinTextChars is the shortest extracted text, after trimming, that
// ingestion accepts.
const DefaultMinTextChars = 20

// maxDeleteRounds bounds the list-then-delete passes of a global delete.
const maxDeleteRounds = 10

// VectorStore is the document-level view of the vector index.
// *rag.Store satisfies it.
type VectorStore interface {
	// Exists reports whether any fragment of the tenant's document is indexed.
	Exists(ctx context.Context, tenantID, documentID string) (bool, error)
	// Upsert writes the fragments and returns how many records were stored.
	Upsert(ctx context.Context, tenantID, documentID string, fragments []segment.Fragment) (int, error)
	// DeleteByDocument removes the tenant's fragments of documentID.
	DeleteByDocument(ctx context.Context, tenantID, documentID string) (int, error)
	// ListDocuments returns the document ids indexed for tenantID.
	ListDocuments(ctx context.Context, tenantID string) ([]string, error)
	// ListTenantsForDocument returns the tenants that indexed documentID.
	ListTenantsForDocument(ctx context.Context, documentID string) ([]string, error)
}

// Searcher builds the grounding context for a query. *rag.Retriever
// satisfies it.
type Searcher interface {
	// Search returns the context string, or rag.NoRelevantResults.
	Search(ctx context.Context, query, tenantID string) (string, error)
}

// Profiles resolves per-tenant generation settings. *profile.Store satisfies it.
type Profiles interface {
	// Load returns the tenant's effective profile.
	Load(ctx context.Context, tenantID string) (*profile.Profile, error)
	// Prompt returns the tenant's prompt and whether it is custom.
	Prompt(ctx context.Context, tenantID string) (string, bool, error)
	// SetPrompt stores a custom prompt.
	SetPrompt(ctx context.Context, tenantID, prompt string) error
	// DeletePrompt restores the default prompt.
	DeletePrompt(ctx context.Context, tenantID string) error
}

// Config holds the collaborators required to construct a Service.
type Config struct {
	// Extractor turns uploaded bytes into plain text.
	Extractor extract.Extractor
	// Segmenter splits text into fragments. Defaults to segment.New(segment.Config{}).
	Segmenter *segment.Segmenter
	// Vectors is the tenant-scoped vector store.
	Vectors VectorStore
	// Retriever builds query context.
	Retriever Searcher
	// Memory stores conversation history.
	Memory memory.Store
	// Generator produces replies.
	Generator generator.Generator
	// Profiles resolves tenant prompts and model settings.
	Profiles Profiles
	// Blobs stores uploaded files. Required for Train and the file operations.
	Blobs blob.Store
	// MinTextChars is the minimum extracted text length. Defaults to
	// DefaultMinTextChars.
	MinTextChars int
	// MetricsRegistry receives the service metrics. If nil a private
	// registry is used and the metrics are not exported.
	MetricsRegistry prometheus.Registerer
}

// IngestResult describes a completed ingestion.
type IngestResult struct {
	// TenantID is the tenant the document was indexed for.
	TenantID string `json:"tenantId"`
	// DocumentID is the indexed document.
	DocumentID string `json:"documentId"`
	// Fragments is the number of fragments written.
	Fragments int `json:"fragments"`
	// Replaced is true when a previous version was removed first.
	Replaced bool `json:"replaced"`
	// Removed is the number of fragments of the previous version deleted.
	Removed int `json:"removed"`
}

// DeleteResult describes a completed document deletion.
type DeleteResult struct {
	// DocumentID is the deleted document.
	DocumentID string `json:"documentId"`
	// Tenants lists the tenants whose fragments were removed.
	Tenants []string `json:"tenants"`
	// Fragments is the total number of fragments removed.
	Fragments int `json:"fragments"`
	// FileDeleted is true when the stored file was removed (global delete only).
	FileDeleted bool `json:"fileDeleted"`
}

// add records n fragments removed for tenantID. Tenants with nothing
// removed are not listed; a tenant seen in several rounds is listed once.
func (r *DeleteResult) add(tenantID string, n int) {
	if n <= 0 {
		return
	}
	r.Fragments += n
	if !slices.Contains(r.Tenants, tenantID) {
		r.Tenants = append(r.Tenants, tenantID)
	}
}

// Service coordinates ingestion and query answering. It is safe for
// concurrent use: ingest, train and delete are serialised per
// (tenant, document), queries per (tenant, session), and training or
// globally deleting a stored file per file.
type Service struct {
	extractor    extract.Extractor
	segmenter    *segment.Segmenter
	vectors      VectorStore
	retriever    Searcher
	memory       memory.Store
	generator    generator.Generator
	profiles     Profiles
	blobs        blob.Store
	minTextChars int

	// locks serialises mutations per document and file and queries per
	// conversation.
	locks *keyedMutex

	metrics *serviceMetrics
}

// New constructs a Service from cfg.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("orchestrator: config must not be nil")
	}
	switch {
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("orchestrator: extractor must not be nil")
	case cfg.Vectors == nil:
		return nil, fmt.Errorf("orchestrator: vector store must not be nil")
	case cfg.Retriever == nil:
		return nil, fmt.Errorf("orchestrator: retriever must not be nil")
	case cfg.Memory == nil:
		return nil, fmt.Errorf("orchestrator: memory store must not be nil")
	case cfg.Generator == nil:
		return nil, fmt.Errorf("orchestrator: generator must not be nil")
	case cfg.Profiles == nil:
		return nil, fmt.Errorf("orchestrator: profiles must not be nil")
	}

	seg := cfg.Segmenter
	if seg == nil {
		seg = segment.New(segment.Config{})
	}
	minChars := cfg.MinTextChars
	if minChars <= 0 {
		minChars = DefaultMinTextChars
	}
	reg := cfg.MetricsRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Service{
		extractor:    cfg.Extractor,
		segmenter:    seg,
		vectors:      cfg.Vectors,
		retriever:    cfg.Retriever,
		memory:       cfg.Memory,
		generator:    cfg.Generator,
		profiles:     cfg.Profiles,
		blobs:        cfg.Blobs,
		minTextChars: minChars,
		locks:        newKeyedMutex(),
		metrics:      newServiceMetrics(reg),
	}, nil
}

// Ingest indexes raw as documentID for tenantID, replacing any previous
// version. Every validation step runs before the index is touched, so a
// rejected document leaves the existing version in place.
func (s *Service) Ingest(ctx context.Context, tenantID, documentID string, raw []byte) (*IngestResult, error) {
	res, err := s.ingest(ctx, tenantID, documentID, raw)
	s.metrics.observeIngest(res, err)
	return res, err
}

func (s *Service) ingest(ctx context.Context, tenantID, documentID string, raw []byte) (*IngestResult, error) {
	tenantID, documentID = strings.TrimSpace(tenantID), strings.TrimSpace(documentID)
	if err := requireIDs(tenantID, documentID); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, apperr.Validation("orchestrator: document %s is empty", documentID)
	}

	log := logging.FromContext(ctx).With(
		slog.String("tenant", tenantID),
		slog.String("document", documentID),
	)

	unlock := s.locks.Lock(documentKey(tenantID, documentID))
	defer unlock()

	text, err := s.extractor.Extract(ctx, documentID, raw)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: extract %s: %w", documentID, err)
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < s.minTextChars {
		return nil, apperr.Validation("orchestrator: document %s has no processable text", documentID)
	}

	fragments := s.segmenter.Segment(text)
	if len(fragments) == 0 {
		return nil, apperr.Validation("orchestrator: document %s produced no fragments", documentID)
	}

	res := &IngestResult{TenantID: tenantID, DocumentID: documentID}

	exists, err := s.vectors.Exists(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: check existing %s: %w", documentID, err)
	}
	if exists {
		removed, err := s.vectors.DeleteByDocument(ctx, tenantID, documentID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: remove previous %s: %w", documentID, err)
		}
		res.Replaced = true
		res.Removed = removed
		log.Info("orchestrator: removed previous version", slog.Int("fragments", removed))
	}

	n, err := s.vectors.Upsert(ctx, tenantID, documentID, fragments)
	if err != nil {
		if exists {
			log.Error("orchestrator: upsert failed after delete, document is now absent", slog.Any("error", err))
		}
		return nil, fmt.Errorf("orchestrator: index %s: %w", documentID, err)
	}
	res.Fragments = n

	log.Info("orchestrator: document indexed",
		slog.Int("fragments", n),
		slog.Bool("replaced", res.Replaced),
	)
	return res, nil
}

// Train indexes the stored file filename for tenantID. It holds the file
// lock, so a global delete of the same file either runs first and Train
// finds no file, or runs after and removes the new fragments too.
func (s *Service) Train(ctx context.Context, tenantID, filename string) (*IngestResult, error) {
	key, err := s.fileKey(filename)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(fileLockKey(key))
	defer unlock()

	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load %s: %w", key, err)
	}
	return s.Ingest(ctx, tenantID, key, data)
}

// Query answers query for tenantID within sessionID and records the
// exchange in the conversation history. History belongs to the
// (tenant, session) pair, so reusing a session id under another tenant
// starts a fresh conversation. Queries on one conversation run one at a
// time so each sees the previous reply.
func (s *Service) Query(ctx context.Context, tenantID, sessionID, query string) (string, error) {
	start := time.Now()
	reply, err := s.query(ctx, tenantID, sessionID, query)
	s.metrics.observeQuery(err, time.Since(start))
	return reply, err
}

func (s *Service) query(ctx context.Context, tenantID, sessionID, query string) (string, error) {
	tenantID, sessionID = strings.TrimSpace(tenantID), strings.TrimSpace(sessionID)
	switch {
	case tenantID == "":
		return "", apperr.Validation("orchestrator: tenant id is required")
	case sessionID == "":
		return "", apperr.Validation("orchestrator: session id is required")
	case strings.TrimSpace(query) == "":
		return "", apperr.Validation("orchestrator: query must not be empty")
	}

	unlock := s.locks.Lock(sessionKey(tenantID, sessionID))
	defer unlock()
	conversation := conversationKey(tenantID, sessionID)

	log := logging.FromContext(ctx).With(
		slog.String("tenant", tenantID),
		slog.String("session", sessionID),
	)

	knowledge, err := s.retriever.Search(ctx, query, tenantID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: retrieve: %w", err)
	}
	if knowledge == rag.NoRelevantResults {
		s.metrics.queryNoContextTotal.Inc()
	}

	history, err := s.memory.History(ctx, conversation)
	if err != nil {
		return "", fmt.Errorf("orchestrator: load history: %w", err)
	}

	prof, err := s.profiles.Load(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: load profile: %w", err)
	}

	reply, err := s.generator.Generate(ctx, generator.Request{
		SystemPrompt: prof.SystemPrompt,
		Context:      knowledge,
		History:      history,
		Query:        query,
		Model:        prof.Model,
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: generate: %w", err)
	}

	err = s.memory.Append(ctx, conversation,
		memory.Message{Role: memory.RoleUser, Content: query},
		memory.Message{Role: memory.RoleAssistant, Content: reply},
	)
	if err != nil {
		return "", fmt.Errorf("orchestrator: save history: %w", err)
	}

	log.Debug("orchestrator: query answered",
		slog.Int("history", len(history)),
		slog.Bool("grounded", knowledge != rag.NoRelevantResults),
	)
	return reply, nil
}

// DeleteDocument removes documentID. With a tenantID only that tenant's
// fragments go; with an empty tenantID the document is removed from every
// tenant and its stored file is deleted. Deleting an unknown document is a
// no-op.
func (s *Service) DeleteDocument(ctx context.Context, tenantID, documentID string) (*DeleteResult, error) {
	tenantID, documentID = strings.TrimSpace(tenantID), strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, apperr.Validation("orchestrator: document id is required")
	}

	res := &DeleteResult{DocumentID: documentID, Tenants: []string{}}
	global := tenantID == ""

	var err error
	if global {
		err = s.deleteEverywhere(ctx, documentID, res)
	} else {
		var n int
		n, err = s.deleteForTenant(ctx, tenantID, documentID)
		res.add(tenantID, n)
	}
	s.metrics.deleteFragmentsTotal.Add(float64(res.Fragments))
	if err != nil {
		return res, err
	}

	logging.FromContext(ctx).Info("orchestrator: document deleted",
		slog.String("document", documentID),
		slog.Bool("global", global),
		slog.Any("tenants", res.Tenants),
		slog.Int("fragments", res.Fragments),
		slog.Bool("file_deleted", res.FileDeleted),
	)
	return res, nil
}

// deleteEverywhere removes documentID from every tenant and then deletes the
// stored file. It holds the file lock throughout so no Train of the same
// file interleaves, and re-lists tenants until none remain before the file
// goes, so a failure part way leaves the file in place for a retry.
func (s *Service) deleteEverywhere(ctx context.Context, documentID string, res *DeleteResult) error {
	lockID := documentID
	if key, err := blob.CleanKey(documentID); err == nil {
		lockID = key
	}
	unlock := s.locks.Lock(fileLockKey(lockID))
	defer unlock()

	for round := 0; ; round++ {
		tenants, err := s.vectors.ListTenantsForDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("orchestrator: list tenants for %s: %w", documentID, err)
		}
		if len(tenants) == 0 {
			break
		}
		if round == maxDeleteRounds {
			return apperr.Dependency("orchestrator: delete "+documentID,
				fmt.Errorf("%d tenants still indexed after %d rounds", len(tenants), maxDeleteRounds))
		}
		for _, t := range tenants {
			n, err := s.deleteForTenant(ctx, t, documentID)
			if err != nil {
				return err
			}
			res.add(t, n)
		}
	}

	if s.blobs == nil {
		return nil
	}
	deleted, err := s.deleteFile(ctx, documentID)
	if err != nil {
		return err
	}
	res.FileDeleted = deleted
	return nil
}

// deleteForTenant removes one tenant's fragments under the document lock.
func (s *Service) deleteForTenant(ctx context.Context, tenantID, documentID string) (int, error) {
	unlock := s.locks.Lock(documentKey(tenantID, documentID))
	defer unlock()

	n, err := s.vectors.DeleteByDocument(ctx, tenantID, documentID)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: delete %s for %s: %w", documentID, tenantID, err)
	}
	return n, nil
}

// deleteFile removes the stored file. A missing file is not an error.
func (s *Service) deleteFile(ctx context.Context, documentID string) (bool, error) {
	key, err := blob.CleanKey(documentID)
	if err != nil {
		return false, err
	}
	err = s.blobs.Delete(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("orchestrator: delete file %s: %w", key, err)
	}
	return true, nil
}

// Documents returns the document ids indexed for tenantID.
func (s *Service) Documents(ctx context.Context, tenantID string) ([]string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, apperr.Validation("orchestrator: tenant id is required")
	}
	docs, err := s.vectors.ListDocuments(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list documents: %w", err)
	}
	return docs, nil
}

// History returns the stored messages of tenantID's session sessionID.
func (s *Service) History(ctx context.Context, tenantID, sessionID string) ([]memory.Message, error) {
	tenantID, sessionID = strings.TrimSpace(tenantID), strings.TrimSpace(sessionID)
	switch {
	case tenantID == "":
		return nil, apperr.Validation("orchestrator: tenant id is required")
	case sessionID == "":
		return nil, apperr.Validation("orchestrator: session id is required")
	}
	return s.memory.History(ctx, conversationKey(tenantID, sessionID))
}

// conversationKey is the history key of one tenant's session. The tenant
// length prefix keeps ("a:1", "b") and ("a", "1:b") apart.
func conversationKey(tenantID, sessionID string) string {
	return strconv.Itoa(len(tenantID)) + ":" + tenantID + ":" + sessionID
}

// requireIDs validates the tenant/document pair.
func requireIDs(tenantID, documentID string) error {
	if tenantID == "" {
		return apperr.Validation("orchestrator: tenant id is required")
	}
	if documentID == "" {
		return apperr.Validation("orchestrator: document id is required")
	}
	return nil
}
