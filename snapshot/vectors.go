package snapshot

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// VectorEncoding selects how vector components are stored.
type VectorEncoding uint8

const (
	// Float32 stores components losslessly.
	Float32 VectorEncoding = 0
	// Float16 halves vector size at reduced precision.
	Float16 VectorEncoding = 1
)

func (e VectorEncoding) String() string {
	switch e {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return fmt.Sprintf("VectorEncoding(%d)", uint8(e))
	}
}

// ParseVectorEncoding converts "float32" or "float16" (or "" for float32).
func ParseVectorEncoding(s string) (VectorEncoding, error) {
	switch strings.ToLower(s) {
	case "", "float32", "f32":
		return Float32, nil
	case "float16", "f16", "half":
		return Float16, nil
	default:
		return 0, fmt.Errorf("snapshot: unknown vector encoding %q", s)
	}
}

func (e VectorEncoding) width() int {
	if e == Float16 {
		return 2
	}
	return 4
}

// appendVectors writes [count u32][dim u32][components...].
func appendVectors(dst []byte, vecs [][]float32, dim int, enc VectorEncoding) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(vecs)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(dim))
	for _, v := range vecs {
		for _, f := range v {
			if enc == Float16 {
				dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(f).Bits())
			} else {
				dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
			}
		}
	}
	return dst
}

func readVectors(body []byte, enc VectorEncoding) ([][]float32, int, error) {
	if len(body) < 8 {
		return nil, 0, corruptf("vector section too short")
	}
	count := int(binary.LittleEndian.Uint32(body[0:]))
	dim := int(binary.LittleEndian.Uint32(body[4:]))
	body = body[8:]

	w := enc.width()
	if uint64(count)*uint64(dim)*uint64(w) != uint64(len(body)) {
		return nil, 0, corruptf("vector section has %d bytes for %dx%d", len(body), count, dim)
	}

	flat := make([]float32, count*dim)
	for i := range flat {
		if enc == Float16 {
			flat[i] = float16.Frombits(binary.LittleEndian.Uint16(body[i*2:])).Float32()
		} else {
			flat[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		}
	}

	vecs := make([][]float32, count)
	for i := range vecs {
		vecs[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return vecs, dim, nil
}
