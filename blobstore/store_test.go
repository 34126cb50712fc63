package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreLifecycle(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "snapshots/a.anx", []byte("alpha")))
	require.NoError(t, store.Put(ctx, "snapshots/b.anx", []byte("beta")))
	require.NoError(t, store.Put(ctx, "other.bin", []byte("x")))

	data, err := store.Get(ctx, "snapshots/a.anx")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	// overwrite
	require.NoError(t, store.Put(ctx, "snapshots/a.anx", []byte("alpha-2")))
	data, err = store.Get(ctx, "snapshots/a.anx")
	require.NoError(t, err)
	assert.Equal(t, "alpha-2", string(data))

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/a.anx", "snapshots/b.anx"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other.bin", "snapshots/a.anx", "snapshots/b.anx"}, all)

	ok, err := Exists(ctx, store, "other.bin")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "snapshots/a.anx"))
	require.NoError(t, store.Delete(ctx, "snapshots/a.anx"))

	_, err = store.Get(ctx, "snapshots/a.anx")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err = Exists(ctx, store, "snapshots/a.anx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStoreLifecycle(t, store)
	assert.Equal(t, 2, store.Len())

	t.Run("CopiesData", func(t *testing.T) {
		buf := []byte("abc")
		require.NoError(t, store.Put(context.Background(), "copy", buf))
		buf[0] = 'z'

		got, err := store.Get(context.Background(), "copy")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, store.Put(ctx, "x", nil), context.Canceled)
	})
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	testStoreLifecycle(t, store)

	_, err := os.Stat(filepath.Join(dir, "snapshots", "b.anx"))
	require.NoError(t, err)
	assert.Equal(t, dir, store.Root())

	t.Run("InvalidName", func(t *testing.T) {
		assert.Error(t, store.Put(context.Background(), "../escape", []byte("x")))
		assert.Error(t, store.Put(context.Background(), "", []byte("x")))
	})

	t.Run("MissingRoot", func(t *testing.T) {
		empty := NewLocalStore(filepath.Join(dir, "does-not-exist"))
		names, err := empty.List(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

type countingStore struct {
	Store
	gets atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, name string) ([]byte, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, name)
}

func TestCachingStore(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore()}
	store, err := NewCachingStore(inner, 1<<20)
	require.NoError(t, err)
	defer store.Close()

	testStoreLifecycle(t, store)

	t.Run("InvalidatesOnPut", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, "k", []byte("v1")))
		_, err := store.Get(ctx, "k")
		require.NoError(t, err)
		store.Wait()

		require.NoError(t, store.Put(ctx, "k", []byte("v2")))
		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))
	})

	t.Run("ConcurrentGets", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, "hot", []byte("payload")))

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := store.Get(ctx, "hot")
				assert.NoError(t, err)
				assert.Equal(t, "payload", string(got))
			}()
		}
		wg.Wait()
		assert.Positive(t, inner.gets.Load())
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, "c", []byte("abc")))
		got, err := store.Get(ctx, "c")
		require.NoError(t, err)
		got[0] = 'z'

		again, err := store.Get(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})
}

func TestPublishCurrent(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]Store{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Current(ctx, s)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, Publish(ctx, s, "v1.anx"))
			require.NoError(t, Publish(ctx, s, "v2.anx"))

			got, err := Current(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, "v2.anx", got)

			require.NoError(t, s.Put(ctx, CurrentName, []byte("  \n")))
			_, err = Current(ctx, s)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
