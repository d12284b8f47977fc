package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/blob"
	"github.com/54b3r/ragbot-go/internal/extract"
	"github.com/54b3r/ragbot-go/internal/logging"
)

// reservedPrefix holds tenant prompts and is hidden from the file listing.
const reservedPrefix = "prompts/"

// Upload stores data under filename and returns the normalised key, which is
// also the document id used when the file is trained. Only PDF files are
// accepted.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	key, err := s.fileKey(filename)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", apperr.Validation("orchestrator: file %s is empty", key)
	}

	unlock := s.locks.Lock(fileLockKey(key))
	defer unlock()

	if err := s.blobs.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("orchestrator: store %s: %w", key, err)
	}
	logging.FromContext(ctx).Info("orchestrator: file uploaded",
		slog.String("file", key),
		slog.Int("bytes", len(data)),
	)
	return key, nil
}

// Download returns the stored file, or an ErrNotFound error.
func (s *Service) Download(ctx context.Context, filename string) ([]byte, error) {
	key, err := s.fileKey(filename)
	if err != nil {
		return nil, err
	}
	return s.blobs.Get(ctx, key)
}

// Files lists the stored document files.
func (s *Service) Files(ctx context.Context) ([]string, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("orchestrator: blob store is not configured")
	}
	keys, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list files: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, reservedPrefix) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// Prompt returns tenantID's system prompt and whether it is custom.
func (s *Service) Prompt(ctx context.Context, tenantID string) (string, bool, error) {
	return s.profiles.Prompt(ctx, strings.TrimSpace(tenantID))
}

// SetPrompt stores a custom system prompt for tenantID.
func (s *Service) SetPrompt(ctx context.Context, tenantID, prompt string) error {
	return s.profiles.SetPrompt(ctx, strings.TrimSpace(tenantID), prompt)
}

// DeletePrompt restores the default system prompt for tenantID.
func (s *Service) DeletePrompt(ctx context.Context, tenantID string) error {
	return s.profiles.DeletePrompt(ctx, strings.TrimSpace(tenantID))
}

// fileKey validates a document filename and returns its blob key.
func (s *Service) fileKey(filename string) (string, error) {
	if s.blobs == nil {
		return "", fmt.Errorf("orchestrator: blob store is not configured")
	}
	key, err := blob.CleanKey(filename)
	if err != nil {
		return "", err
	}
	if strings.Contains(key, "/") {
		return "", apperr.Validation("orchestrator: filename %q must not contain a path", filename)
	}
	if !extract.IsPDF(key) {
		return "", apperr.Validation("orchestrator: unsupported type %q, only PDF files are accepted", key)
	}
	return key, nil
}
