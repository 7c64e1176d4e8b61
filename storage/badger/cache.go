package badger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/storage"
)

// CacheStore keeps an embedding cache record under a single BadgerDB key.
// Each write replaces the whole record inside one transaction.
type CacheStore struct {
	backend *Backend
	key     []byte
	owned   bool
	mu      sync.Mutex
	now     func() time.Time
}

var _ storage.Store = (*CacheStore)(nil)

// CacheOption configures a CacheStore.
type CacheOption func(*CacheStore)

// WithCacheName stores the record under name instead of the default key,
// allowing several caches to share one database.
func WithCacheName(name string) CacheOption {
	return func(s *CacheStore) {
		if name != "" {
			s.key = makeCacheRecordKey(name)
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) CacheOption {
	return func(s *CacheStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCacheStore creates a cache store on an existing backend.
// The caller keeps ownership of backend.
func NewCacheStore(backend *Backend, opts ...CacheOption) *CacheStore {
	s := &CacheStore{
		backend: backend,
		key:     makeCacheRecordKey(defaultCacheName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenCacheStore opens a backend at dirPath and returns a store that closes
// it on Close.
func OpenCacheStore(dirPath string, inMemory bool, opts ...CacheOption) (*CacheStore, error) {
	backend, err := OpenBackend(dirPath, inMemory)
	if err != nil {
		return nil, err
	}
	s := NewCacheStore(backend, opts...)
	s.owned = true
	return s, nil
}

// Load reads and validates the cache record.
func (s *CacheStore) Load(ctx context.Context, meta storage.Metadata, chunks []*core.Chunk) (map[core.ID][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var record *storage.CacheRecord
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(s.key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrCacheMiss
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			record, unmarshalErr = storage.UnmarshalCacheRecord(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}

	vectors, err := storage.Accept(record, meta, chunks)
	if err != nil {
		return nil, err
	}
	s.backend.logger.Debug("loaded cache record", "key", string(s.key), "entries", len(record.Entries), "accepted", len(vectors))
	return vectors, nil
}

// Persist replaces the cache record with vectors under meta.
func (s *CacheStore) Persist(ctx context.Context, meta storage.Metadata, vectors map[core.ID][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	record := storage.NewCacheRecord(meta, vectors, s.now())
	value := storage.MarshalCacheRecord(record)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(s.key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	s.backend.logger.Info("persisted embedding cache", "key", string(s.key), "entries", len(record.Entries), "bytes", len(value))
	return nil
}

// Clear deletes the cache record.
func (s *CacheStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(s.key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Close closes the backend when the store opened it.
func (s *CacheStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owned || s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}
