package vectorstore

import (
	"iter"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tidwall/btree"

	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/resource"
)

const bytesPerFloat = 4

// Options configures a Store.
type Options struct {
	// InitialCapacity pre-allocates room for this many vectors.
	InitialCapacity int

	// Resources accounts vector memory. Nil means unlimited.
	Resources *resource.Controller
}

// DefaultOptions contains the default options for Store.
var DefaultOptions = Options{
	InitialCapacity: 1024,
}

// WithResourceController accounts vector memory against rc.
func WithResourceController(rc *resource.Controller) func(o *Options) {
	return func(o *Options) { o.Resources = rc }
}

// WithInitialCapacity pre-allocates room for n vectors.
func WithInitialCapacity(n int) func(o *Options) {
	return func(o *Options) { o.InitialCapacity = n }
}

type entry[K model.Key] struct {
	key K
	row model.RowID
}

// Entry is a materialized (key, row, vector) triple.
type Entry[K model.Key] struct {
	Key    K
	Row    model.RowID
	Vector []float32
}

// Store is an in-memory collection of fixed-dimension vectors.
//
// Thread safety: all methods are safe for concurrent use.
type Store[K model.Key] struct {
	mu sync.RWMutex

	dim  int
	data []float32 // data[row*dim : (row+1)*dim]
	keys []K       // row -> key
	rows map[K]model.RowID
	live *roaring.Bitmap
	// order holds live keys in ascending order.
	order *btree.BTreeG[entry[K]]

	version  uint64
	removals uint64

	rc *resource.Controller
}

// New creates a new Store for vectors of the given dimension.
func New[K model.Key](dim int, optFns ...func(o *Options)) (*Store[K], error) {
	if dim <= 0 {
		return nil, &model.ErrInvalidDimension{Dimension: dim}
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	capacity := max(opts.InitialCapacity, 0)

	return &Store[K]{
		dim:  dim,
		data: make([]float32, 0, capacity*dim),
		keys: make([]K, 0, capacity),
		rows: make(map[K]model.RowID, capacity),
		live: roaring.New(),
		order: btree.NewBTreeG(func(a, b entry[K]) bool {
			return a.key < b.key
		}),
		rc: opts.Resources,
	}, nil
}

// Dimension returns the fixed vector dimension.
func (s *Store[K]) Dimension() int { return s.dim }

// Len returns the number of live vectors.
func (s *Store[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Put stores vec under key. The vector is copied into a new row and the
// row's memory is reserved on the resource controller.
// Replacing an existing key retires its old row.
func (s *Store[K]) Put(key K, vec []float32) error {
	if err := model.CheckDimension(vec, s.dim); err != nil {
		return err
	}

	if err := s.rc.AcquireMemory(int64(s.dim * bytesPerFloat)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.rows[key]; ok {
		s.retire(old)
		s.removals++
	}

	row := model.RowID(len(s.keys))
	s.data = append(s.data, vec...)
	s.keys = append(s.keys, key)
	s.rows[key] = row
	s.live.Add(uint32(row))
	s.order.Set(entry[K]{key: key, row: row})
	s.version++

	return nil
}

// Get returns the vector stored under key.
// The returned slice must not be modified.
func (s *Store[K]) Get(key K) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[key]
	if !ok {
		return nil, model.ErrKeyNotFound
	}
	return s.vectorAt(row), nil
}

// Contains reports whether key is present.
func (s *Store[K]) Contains(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[key]
	return ok
}

// Remove deletes key from the store.
//
// Indexes built over the store are not repaired: a clustering index
// reports model.ErrStaleIndex until it is rebuilt.
func (s *Store[K]) Remove(key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key]
	if !ok {
		return model.ErrKeyNotFound
	}

	s.retire(row)
	delete(s.rows, key)
	s.order.Delete(entry[K]{key: key})
	s.removals++
	s.version++

	return nil
}

// retire marks a row dead. Row ids stay stable for the indexes built
// over the store, so the row's storage and its memory reservation are
// kept; Clone compacts. Caller must hold s.mu.
func (s *Store[K]) retire(row model.RowID) {
	s.live.Remove(uint32(row))
}

// All returns the live (key, vector) pairs in ascending key order.
// Iteration works on a point-in-time copy, so it may be restarted and
// the store may be mutated while iterating.
func (s *Store[K]) All() iter.Seq2[K, []float32] {
	return func(yield func(K, []float32) bool) {
		s.mu.RLock()
		snap := s.order.Copy()
		data := s.data
		s.mu.RUnlock()

		snap.Scan(func(e entry[K]) bool {
			off := int(e.row) * s.dim
			return yield(e.key, data[off:off+s.dim:off+s.dim])
		})
	}
}

// Keys returns the live keys in ascending order.
func (s *Store[K]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]K, 0, s.order.Len())
	s.order.Scan(func(e entry[K]) bool {
		out = append(out, e.key)
		return true
	})
	return out
}

// Entries returns a materialized snapshot of all live entries in
// ascending key order.
func (s *Store[K]) Entries() []Entry[K] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry[K], 0, s.order.Len())
	s.order.Scan(func(e entry[K]) bool {
		out = append(out, Entry[K]{Key: e.key, Row: e.row, Vector: s.vectorAt(e.row)})
		return true
	})
	return out
}

// RowID returns the row currently holding key.
func (s *Store[K]) RowID(key K) (model.RowID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[key]
	return row, ok
}

// KeyOf returns the key stored at row, live or not.
func (s *Store[K]) KeyOf(row model.RowID) (K, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero K
	if int(row) >= len(s.keys) {
		return zero, false
	}
	return s.keys[row], true
}

// VectorAt returns the vector stored at row, live or not.
func (s *Store[K]) VectorAt(row model.RowID) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(row) >= len(s.keys) {
		return nil, false
	}
	return s.vectorAt(row), true
}

func (s *Store[K]) vectorAt(row model.RowID) []float32 {
	off := int(row) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

// LiveRows returns a copy of the bitmap of live rows.
func (s *Store[K]) LiveRows() *roaring.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Clone()
}

// IsLive reports whether row still holds a live vector.
func (s *Store[K]) IsLive(row model.RowID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Contains(uint32(row))
}

// Version is incremented on every mutation.
func (s *Store[K]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Removals is incremented whenever a row is retired (remove or replace).
func (s *Store[K]) Removals() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.removals
}

// Rows returns the number of rows ever allocated, live or not.
func (s *Store[K]) Rows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Clone returns a deep copy of the live contents, compacted to fresh rows
// in ascending key order.
func (s *Store[K]) Clone() (*Store[K], error) {
	entries := s.Entries()

	c, err := New[K](s.dim, WithInitialCapacity(len(entries)), WithResourceController(s.rc))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := c.Put(e.Key, e.Vector); err != nil {
			return nil, err
		}
	}
	return c, nil
}
