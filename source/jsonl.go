package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MaxLineBytes bounds a single JSON Lines record.
const MaxLineBytes = 16 << 20

// ScanJSONL calls fn for every record in r. Each line is an object with an
// "embedding" array and optional "id" and "content" fields; records without
// an id get a random UUID. Blank lines are skipped.
func ScanJSONL(r io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("source: line %d: %w", line, err)
		}
		if len(rec.Vector) == 0 {
			return fmt.Errorf("source: line %d: %w", line, ErrEmptyVector)
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadJSONL reads all records from r.
func ReadJSONL(r io.Reader) ([]Record, error) {
	var recs []Record
	err := ScanJSONL(r, func(rec Record) error {
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// WriteJSONL writes recs one object per line.
func WriteJSONL(w io.Writer, recs []Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}
