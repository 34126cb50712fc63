package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/crc32"

	"github.com/hupe1980/annidx/blobstore"
	"github.com/hupe1980/annidx/codec"
	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/hnsw"
	"github.com/hupe1980/annidx/ivf"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/resource"
	"github.com/hupe1980/annidx/vectorstore"
)

const (
	// Magic identifies snapshot blobs.
	Magic = "ANX1"

	// Version is the newest format version this package writes and reads.
	Version uint16 = 1
)

const (
	sectionHeader       uint8 = 1
	sectionKeys         uint8 = 2
	sectionVectors      uint8 = 3
	sectionPartition    uint8 = 4
	sectionGraph        uint8 = 5
	sectionGraphVectors uint8 = 6
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Options configures snapshot writing.
type Options struct {
	// Codec encodes keys, the partition and graph adjacency.
	Codec codec.Codec

	Compression Compression

	// Vectors selects the vector component encoding.
	Vectors VectorEncoding

	// Resources rate limits snapshot I/O. Nil means unlimited.
	Resources *resource.Controller
}

// DefaultOptions contains the default options for writing snapshots.
var DefaultOptions = Options{
	Codec:       codec.Default,
	Compression: CompressionZstd,
	Vectors:     Float32,
}

// Snapshot is the decoded content of a snapshot blob.
type Snapshot[K model.Key] struct {
	Dimension int
	Metric    distance.Metric
	Created   time.Time

	// Keys and Vectors hold the live store contents, in ascending key order.
	Keys    []K
	Vectors [][]float32

	// Partition is nil when the clustering index was not built.
	Partition *ivf.Partition[K]

	// Graph is nil when no graph was captured.
	Graph          *hnsw.Layout[K]
	GraphHeuristic bool
}

type header struct {
	Dimension      int       `json:"dimension" msgpack:"dimension"`
	Metric         string    `json:"metric" msgpack:"metric"`
	Created        time.Time `json:"created" msgpack:"created"`
	Count          int       `json:"count" msgpack:"count"`
	GraphHeuristic bool      `json:"graph_heuristic" msgpack:"graph_heuristic"`
}

// Capture builds a Snapshot from a store and optional indexes. A clustering
// index that is not Ready, or is stale, is omitted.
func Capture[K model.Key](metric distance.Metric, store *vectorstore.Store[K], clusters *ivf.Index[K], graph *hnsw.Graph[K]) (*Snapshot[K], error) {
	s := &Snapshot[K]{
		Dimension: store.Dimension(),
		Metric:    metric,
		Created:   time.Now().UTC(),
	}

	for _, e := range store.Entries() {
		s.Keys = append(s.Keys, e.Key)
		s.Vectors = append(s.Vectors, e.Vector)
	}

	if clusters != nil && clusters.State() == ivf.StateReady && !clusters.Stale() {
		p, err := clusters.Partition()
		if err != nil {
			return nil, err
		}
		s.Partition = p
	}

	if graph != nil {
		s.Graph = graph.Layout()
		s.GraphHeuristic = graph.Options().Heuristic
	}

	return s, nil
}

// Marshal encodes s into a snapshot blob.
func Marshal[K model.Key](s *Snapshot[K], opts Options) ([]byte, error) {
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if len(opts.Codec.Name()) > 255 {
		return nil, fmt.Errorf("snapshot: codec name too long")
	}
	if len(s.Keys) != len(s.Vectors) {
		return nil, fmt.Errorf("snapshot: %d keys for %d vectors", len(s.Keys), len(s.Vectors))
	}

	payload, err := encodePayload(s, opts)
	if err != nil {
		return nil, err
	}

	stored, err := compress(payload, opts.Compression)
	if err != nil {
		return nil, err
	}

	name := opts.Codec.Name()
	out := make([]byte, 0, 32+len(name)+len(payload))
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint16(out, Version)
	out = append(out, byte(opts.Compression), byte(opts.Vectors), byte(len(name)))
	out = append(out, name...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(payload)))
	if stored == nil {
		out = binary.LittleEndian.AppendUint64(out, 0)
		out = append(out, payload...)
	} else {
		out = binary.LittleEndian.AppendUint64(out, uint64(len(stored)))
		out = append(out, stored...)
	}
	out = binary.LittleEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))

	return out, nil
}

func encodePayload[K model.Key](s *Snapshot[K], opts Options) ([]byte, error) {
	c := opts.Codec
	var buf []byte

	add := func(tag uint8, body []byte) {
		buf = append(buf, tag)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
		buf = append(buf, body...)
	}
	addEncoded := func(tag uint8, v any) error {
		body, err := c.Marshal(v)
		if err != nil {
			return fmt.Errorf("snapshot: encode section %d: %w", tag, err)
		}
		add(tag, body)
		return nil
	}

	h := header{
		Dimension:      s.Dimension,
		Metric:         s.Metric.String(),
		Created:        s.Created,
		Count:          len(s.Keys),
		GraphHeuristic: s.GraphHeuristic,
	}
	if err := addEncoded(sectionHeader, h); err != nil {
		return nil, err
	}
	if err := addEncoded(sectionKeys, s.Keys); err != nil {
		return nil, err
	}
	add(sectionVectors, appendVectors(nil, s.Vectors, s.Dimension, opts.Vectors))

	if s.Partition != nil {
		if err := addEncoded(sectionPartition, s.Partition); err != nil {
			return nil, err
		}
	}

	if s.Graph != nil {
		// Vectors travel in their own section so they share the vector encoding.
		adj := *s.Graph
		adj.Nodes = make([]hnsw.NodeLayout[K], len(s.Graph.Nodes))
		vecs := make([][]float32, len(s.Graph.Nodes))
		for i, n := range s.Graph.Nodes {
			adj.Nodes[i] = hnsw.NodeLayout[K]{Key: n.Key, Friends: n.Friends}
			vecs[i] = n.Vector
		}
		if err := addEncoded(sectionGraph, &adj); err != nil {
			return nil, err
		}
		add(sectionGraphVectors, appendVectors(nil, vecs, s.Graph.Dimension, opts.Vectors))
	}

	return buf, nil
}

// Unmarshal decodes a snapshot blob.
func Unmarshal[K model.Key](data []byte) (*Snapshot[K], error) {
	const fixed = 4 + 2 + 3
	if len(data) < fixed+16+4 {
		if len(data) >= 4 && string(data[:4]) != Magic {
			return nil, ErrBadMagic
		}
		return nil, corruptf("blob too short (%d bytes)", len(data))
	}
	if string(data[:4]) != Magic {
		return nil, ErrBadMagic
	}

	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if actual := crc32.Checksum(body, castagnoli); actual != sum {
		return nil, &ErrChecksumMismatch{Expected: sum, Actual: actual}
	}

	version := binary.LittleEndian.Uint16(body[4:])
	if version == 0 || version > Version {
		return nil, &ErrUnsupportedVersion{Version: version}
	}
	comp := Compression(body[6])
	venc := VectorEncoding(body[7])
	if venc != Float32 && venc != Float16 {
		return nil, corruptf("unknown vector encoding %d", venc)
	}

	nameLen := int(body[8])
	pos := fixed
	if len(body) < pos+nameLen+16 {
		return nil, corruptf("truncated header")
	}
	name := string(body[pos : pos+nameLen])
	pos += nameLen
	c, ok := codec.ByName(name)
	if !ok {
		return nil, &ErrUnknownCodec{Name: name}
	}

	rawSize := binary.LittleEndian.Uint64(body[pos:])
	storedSize := binary.LittleEndian.Uint64(body[pos+8:])
	pos += 16
	rest := body[pos:]

	var payload []byte
	if storedSize == 0 {
		if uint64(len(rest)) != rawSize {
			return nil, corruptf("payload has %d bytes, header says %d", len(rest), rawSize)
		}
		payload = rest
	} else {
		if uint64(len(rest)) != storedSize {
			return nil, corruptf("payload has %d bytes, header says %d", len(rest), storedSize)
		}
		var err error
		if payload, err = decompress(rest, int(rawSize), comp); err != nil {
			return nil, err
		}
	}

	return decodePayload[K](payload, c, venc)
}

func decodePayload[K model.Key](payload []byte, c codec.Codec, venc VectorEncoding) (*Snapshot[K], error) {
	s := &Snapshot[K]{}
	var (
		h          header
		seenHeader bool
		graphVecs  [][]float32
	)

	for len(payload) > 0 {
		if len(payload) < 5 {
			return nil, corruptf("truncated section header")
		}
		tag := payload[0]
		n := int(binary.LittleEndian.Uint32(payload[1:]))
		if len(payload)-5 < n {
			return nil, corruptf("section %d truncated", tag)
		}
		sec := payload[5 : 5+n]
		payload = payload[5+n:]

		var err error
		switch tag {
		case sectionHeader:
			err = c.Unmarshal(sec, &h)
			seenHeader = true
		case sectionKeys:
			err = c.Unmarshal(sec, &s.Keys)
		case sectionVectors:
			s.Vectors, _, err = readVectors(sec, venc)
		case sectionPartition:
			s.Partition = &ivf.Partition[K]{}
			err = c.Unmarshal(sec, s.Partition)
		case sectionGraph:
			s.Graph = &hnsw.Layout[K]{}
			err = c.Unmarshal(sec, s.Graph)
		case sectionGraphVectors:
			graphVecs, _, err = readVectors(sec, venc)
		}
		if err != nil {
			return nil, corruptf("section %d: %v", tag, err)
		}
	}

	if !seenHeader {
		return nil, corruptf("missing header section")
	}
	metric, err := distance.ParseMetric(h.Metric)
	if err != nil {
		return nil, corruptf("header: %v", err)
	}
	s.Dimension = h.Dimension
	s.Metric = metric
	s.Created = h.Created
	s.GraphHeuristic = h.GraphHeuristic

	if len(s.Keys) != h.Count || len(s.Vectors) != h.Count {
		return nil, corruptf("header count %d, got %d keys and %d vectors", h.Count, len(s.Keys), len(s.Vectors))
	}

	if s.Graph != nil {
		if len(graphVecs) != len(s.Graph.Nodes) {
			return nil, corruptf("graph has %d nodes and %d vectors", len(s.Graph.Nodes), len(graphVecs))
		}
		for i := range s.Graph.Nodes {
			s.Graph.Nodes[i].Vector = graphVecs[i]
		}
	}

	return s, nil
}

// Encode writes the snapshot blob to w, rate limited by opts.Resources.
func Encode[K model.Key](ctx context.Context, w io.Writer, s *Snapshot[K], opts Options) error {
	data, err := Marshal(s, opts)
	if err != nil {
		return err
	}
	_, err = resource.NewRateLimitedWriter(ctx, w, opts.Resources).Write(data)
	return err
}

// Decode reads a snapshot blob from r, rate limited by rc.
func Decode[K model.Key](ctx context.Context, r io.Reader, rc *resource.Controller) (*Snapshot[K], error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resource.NewRateLimitedReader(ctx, r, rc)); err != nil {
		return nil, err
	}
	return Unmarshal[K](buf.Bytes())
}

// Save marshals s and puts it into store under name.
func Save[K model.Key](ctx context.Context, store blobstore.Store, name string, s *Snapshot[K], opts Options) error {
	data, err := Marshal(s, opts)
	if err != nil {
		return err
	}
	if err := opts.Resources.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	return store.Put(ctx, name, data)
}

// Load gets name from store and decodes it.
func Load[K model.Key](ctx context.Context, store blobstore.Store, name string, rc *resource.Controller) (*Snapshot[K], error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return Unmarshal[K](data)
}

// RestoreStore rebuilds the vector store.
func (s *Snapshot[K]) RestoreStore(optFns ...func(o *vectorstore.Options)) (*vectorstore.Store[K], error) {
	fns := append([]func(o *vectorstore.Options){vectorstore.WithInitialCapacity(len(s.Keys))}, optFns...)
	store, err := vectorstore.New[K](s.Dimension, fns...)
	if err != nil {
		return nil, err
	}
	for i, key := range s.Keys {
		if err := store.Put(key, s.Vectors[i]); err != nil {
			return nil, fmt.Errorf("snapshot: restore %v: %w", key, err)
		}
	}
	return store, nil
}

// RestoreClusters binds the captured partition to store. It returns an index in
// StateEmpty when no partition was captured.
func (s *Snapshot[K]) RestoreClusters(store *vectorstore.Store[K], optFns ...func(o *ivf.Options)) (*ivf.Index[K], error) {
	fns := append([]func(o *ivf.Options){func(o *ivf.Options) { o.Metric = s.Metric }}, optFns...)
	idx, err := ivf.New[K](fns...)
	if err != nil {
		return nil, err
	}
	if s.Partition == nil {
		return idx, nil
	}
	if err := idx.Restore(store, s.Partition); err != nil {
		return nil, err
	}
	return idx, nil
}

// RestoreGraph rebuilds the captured graph, or returns nil when none was captured.
func (s *Snapshot[K]) RestoreGraph(optFns ...func(o *hnsw.Options)) (*hnsw.Graph[K], error) {
	if s.Graph == nil {
		return nil, nil
	}
	fns := append([]func(o *hnsw.Options){func(o *hnsw.Options) {
		o.Metric = s.Metric
		o.Heuristic = s.GraphHeuristic
	}}, optFns...)
	return hnsw.FromLayout(s.Graph, fns...)
}
