package blobstore

import (
	"context"
	"slices"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheBytes is the cache capacity used when maxBytes <= 0.
const DefaultCacheBytes = 64 << 20

// CachingStore wraps a Store and caches whole blobs on read.
//
// Concurrent Gets for the same missing blob share one inner read.
// Put and Delete invalidate the cached entry after the inner write.
type CachingStore struct {
	inner Store
	cache *ristretto.Cache[string, []byte]
	group singleflight.Group
}

// NewCachingStore creates a CachingStore holding at most maxBytes of blob data.
func NewCachingStore(inner Store, maxBytes int64) (*CachingStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        1 << 16,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &CachingStore{
		inner: inner,
		cache: cache,
	}, nil
}

// Get serves from cache when possible.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.cache.Get(name); ok {
		return slices.Clone(data), nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		data, err := s.inner.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		s.cache.Set(name, data, int64(len(data)))
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]byte)), nil
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.inner.Put(ctx, name, data); err != nil {
		return err
	}
	s.invalidate(name)
	return nil
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	if err := s.inner.Delete(ctx, name); err != nil {
		return err
	}
	s.invalidate(name)
	return nil
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// invalidate drops name and drains the write buffer so a Set queued
// before the write cannot resurface the old content.
func (s *CachingStore) invalidate(name string) {
	s.cache.Del(name)
	s.cache.Wait()
}

// Wait blocks until buffered cache writes are applied.
func (s *CachingStore) Wait() { s.cache.Wait() }

// Close releases the cache. The inner store is not closed.
func (s *CachingStore) Close() error {
	s.cache.Close()
	return nil
}
