package source

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseVectorText parses the pgvector text form "[0.1,0.2,...]".
// Whitespace around components is ignored.
func ParseVectorText(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("source: invalid vector literal %q", truncate(s))
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, ErrEmptyVector
	}
	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("source: component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// FormatVectorText renders v in the pgvector text form.
func FormatVectorText(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v)*10 + 2)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// DecodeVectorBlob decodes little-endian IEEE 754 float32 components, the
// layout SQLite vector extensions store in BLOB columns.
func DecodeVectorBlob(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, ErrEmptyVector
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("source: invalid vector blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// EncodeVectorBlob is the inverse of DecodeVectorBlob.
func EncodeVectorBlob(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// decodeVector accepts a scanned column holding either the text form or a blob.
func decodeVector(v any) ([]float32, error) {
	switch t := v.(type) {
	case string:
		return ParseVectorText(t)
	case []byte:
		if trimmed := bytes.TrimSpace(t); len(trimmed) > 0 && trimmed[0] == '[' {
			return ParseVectorText(string(trimmed))
		}
		return DecodeVectorBlob(t)
	case nil:
		return nil, ErrEmptyVector
	default:
		return nil, fmt.Errorf("source: unsupported vector column type %T", v)
	}
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
