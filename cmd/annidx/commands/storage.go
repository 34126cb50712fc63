package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/annidx/blobstore"
	badgerstore "github.com/hupe1980/annidx/blobstore/badger"
	miniostore "github.com/hupe1980/annidx/blobstore/minio"
	s3store "github.com/hupe1980/annidx/blobstore/s3"
	"github.com/hupe1980/annidx/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore returns the configured blob store. The closer releases the
// store and its read cache.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (blobstore.Store, io.Closer, error) {
	var (
		store  blobstore.Store
		closer io.Closer = nopCloser{}
	)

	switch cfg.Type {
	case "memory":
		store = blobstore.NewMemoryStore()
	case "local":
		store = blobstore.NewLocalStore(cfg.Path)
	case "s3":
		opts := []s3store.Option{
			s3store.WithPrefix(cfg.Prefix),
			s3store.WithPathStyle(cfg.PathStyle),
		}
		if cfg.Region != "" {
			opts = append(opts, s3store.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(cfg.Endpoint))
		}
		if cfg.CommitTable != "" {
			s, err := s3store.OpenCommitStore(ctx, cfg.Bucket, cfg.CommitTable, opts...)
			if err != nil {
				return nil, nil, fmt.Errorf("s3: %w", err)
			}
			store = s
			break
		}
		s, err := s3store.New(ctx, cfg.Bucket, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("s3: %w", err)
		}
		store = s
	case "minio":
		s, err := miniostore.Dial(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("minio: %w", err)
		}
		store = s
	case "badger":
		s, err := badgerstore.Open(badgerstore.Options{Dir: cfg.Path, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	if cfg.CacheBytes > 0 {
		cached, err := blobstore.NewCachingStore(store, cfg.CacheBytes)
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
		inner := closer
		store = cached
		closer = closerFunc(func() error {
			_ = cached.Close()
			return inner.Close()
		})
	}

	logger.Debug("opened blob store", "type", cfg.Type, "cached", cfg.CacheBytes > 0)
	return store, closer, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
