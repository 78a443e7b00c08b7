package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"blitzai/internal/job"
)

// FileStore persists the record set as a single JSON document on disk. It is
// the default backend and mirrors the single named key-value entry the web
// client keeps in browser storage.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore initializes a FileStore writing to the given path.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: file path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: ensure directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted set. A missing file or a document that fails to
// parse yields an empty set, not an error.
func (s *FileStore) Load(ctx context.Context) ([]job.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read file: %w", err)
	}
	var records []job.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil
	}
	return records, nil
}

// Save overwrites the persisted set wholesale.
func (s *FileStore) Save(ctx context.Context, records []job.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("store: encode records: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("store: write file: %w", err)
	}
	return nil
}

// Delete removes one record by id via read-modify-write of the full set.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	records, err := s.Load(ctx)
	if err != nil {
		return err
	}
	remaining, found := removeByID(records, id)
	if !found {
		return ErrNotFound
	}
	return s.Save(ctx, remaining)
}

var _ Store = (*FileStore)(nil)
