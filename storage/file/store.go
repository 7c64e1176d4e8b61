// Package file implements storage.Store on a single file on disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/storage"
)

// Store keeps the embedding cache in one file. Writes go to a temporary
// file in the same directory which is synced and renamed over the target,
// so a crash mid-write leaves the previous record in place.
type Store struct {
	path   string
	mu     sync.Mutex
	closed bool
	now    func() time.Time
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "file-cache")
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a file store at path. The file need not exist yet.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path required")
	}
	s := &Store{
		path:   path,
		now:    time.Now,
		logger: slog.Default().With("component", "file-cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load reads and validates the cache file.
func (s *Store) Load(ctx context.Context, meta storage.Metadata, chunks []*core.Chunk) (map[core.ID][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrCacheMiss
		}
		return nil, err
	}

	record, err := storage.UnmarshalCacheRecord(data)
	if err != nil {
		return nil, err
	}

	vectors, err := storage.Accept(record, meta, chunks)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("loaded cache record",
		"path", s.path,
		"created", record.CreatedAt,
		"entries", len(record.Entries),
		"accepted", len(vectors))
	return vectors, nil
}

// Persist atomically replaces the cache file with vectors under meta.
func (s *Store) Persist(ctx context.Context, meta storage.Metadata, vectors map[core.ID][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}

	record := storage.NewCacheRecord(meta, vectors, s.now())
	data := storage.MarshalCacheRecord(record)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache: %w", err)
	}

	s.logger.Info("persisted embedding cache", "path", s.path, "entries", len(record.Entries), "bytes", len(data))
	return nil
}

// Clear removes the cache file.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.logger.Info("cleared embedding cache", "path", s.path)
	return nil
}

// Close marks the store closed. Subsequent calls return ErrStorageClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
