// Package blob stores uploaded documents and per-tenant prompt files under
// slash-separated keys such as "faq.pdf" or "prompts/prompt_bot1.txt".
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// Store is a flat key/value object store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the object under key, or an ErrNotFound error.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object under key, or returns an ErrNotFound error.
	Delete(ctx context.Context, key string) error
	// List returns the sorted keys that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// CleanKey normalises key to NFC and validates it. Keys are relative,
// slash-separated and may not contain "." or ".." segments.
func CleanKey(key string) (string, error) {
	key = norm.NFC.String(strings.TrimSpace(key))
	if key == "" {
		return "", apperr.Validation("blob: key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", apperr.Validation("blob: invalid key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", apperr.Validation("blob: invalid key %q", key)
		}
	}
	return key, nil
}

// FileStore is a Store on the local filesystem rooted at one directory.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed and returns a FileStore over it.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", abs, err)
	}
	return &FileStore{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (s *FileStore) Root() string { return s.root }

// Put writes data to a temporary file and renames it into place, so readers
// never observe a partial object.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return apperr.Dependency("blob: put", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return apperr.Dependency("blob: put", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return apperr.Dependency("blob: put", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Dependency("blob: put", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return apperr.Dependency("blob: put", err)
	}
	return nil
}

// Get reads the object under key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // p is confined to root
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("blob: %s", key)
	}
	if err != nil {
		return nil, apperr.Dependency("blob: get", err)
	}
	return data, nil
}

// Delete removes the object under key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.NotFound("blob: %s", key)
	}
	if err != nil {
		return apperr.Dependency("blob: delete", err)
	}
	return nil
}

// List walks the root and returns every regular file key starting with
// prefix. Temporary upload files are skipped.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Dependency("blob: list", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// resolve validates key and maps it to a path confined to the root.
func (s *FileStore) resolve(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return confineToDir(s.root, filepath.Join(s.root, filepath.FromSlash(path.Clean(key))))
}

// confineToDir validates that target resolves to a path inside root after
// cleaning both. This prevents path traversal (e.g. "../../etc/passwd").
func confineToDir(root, target string) (string, error) {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if !strings.HasPrefix(target+string(filepath.Separator), root+string(filepath.Separator)) || target == root {
		return "", apperr.Validation("blob: path is outside the store directory")
	}
	return target, nil
}
