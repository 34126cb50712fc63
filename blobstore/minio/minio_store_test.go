package minio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx/blobstore"
)

func TestKeys(t *testing.T) {
	s := NewStore(nil, "bucket", "indexes/")
	assert.Equal(t, "indexes/a.anx", s.key("a.anx"))
	assert.Equal(t, "indexes", s.key(""))
	assert.Equal(t, "a.anx", s.relative("indexes/a.anx"))
	assert.Equal(t, "dir/b", s.relative("indexes/dir/b"))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "a.anx", bare.key("a.anx"))
	assert.Equal(t, "a.anx", bare.relative("a.anx"))
}

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, translateError(minio.ErrorResponse{Code: "NoSuchKey"}), blobstore.ErrNotFound)
	assert.ErrorIs(t, translateError(minio.ErrorResponse{Code: "NotFound"}), blobstore.ErrNotFound)

	other := errors.New("network down")
	assert.Equal(t, other, translateError(other))
}

// TestStore_Integration runs against a live server when ANNIDX_MINIO_ENDPOINT is set.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("ANNIDX_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("ANNIDX_MINIO_ENDPOINT not set")
	}

	store, err := Dial(endpoint, os.Getenv("ANNIDX_MINIO_ACCESS_KEY"), os.Getenv("ANNIDX_MINIO_SECRET_KEY"), false, "annidx-test", "it/")
	require.NoError(t, err)

	ctx := context.Background()
	exists, err := store.client.BucketExists(ctx, "annidx-test")
	require.NoError(t, err)
	if !exists {
		require.NoError(t, store.client.MakeBucket(ctx, "annidx-test", minio.MakeBucketOptions{}))
	}

	require.NoError(t, store.Put(ctx, "a.anx", []byte("hello")))
	got, err := store.Get(ctx, "a.anx")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "a.anx")

	require.NoError(t, store.Delete(ctx, "a.anx"))
	_, err = store.Get(ctx, "a.anx")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
