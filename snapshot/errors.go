package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic is returned when the blob does not start with the snapshot magic.
	ErrBadMagic = errors.New("snapshot: bad magic")

	// ErrCorrupt is returned when the structure of a snapshot is invalid.
	ErrCorrupt = errors.New("snapshot: corrupt data")
)

// ErrUnsupportedVersion is returned for snapshots written by a newer format.
type ErrUnsupportedVersion struct {
	Version uint16
}

func (e *ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("snapshot: unsupported version %d (max %d)", e.Version, Version)
}

// ErrChecksumMismatch is returned when the trailing CRC does not match.
type ErrChecksumMismatch struct {
	Expected uint32
	Actual   uint32
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("snapshot: checksum mismatch: expected %08x, got %08x", e.Expected, e.Actual)
}

// Unwrap makes checksum failures match ErrCorrupt.
func (e *ErrChecksumMismatch) Unwrap() error { return ErrCorrupt }

// ErrUnknownCodec is returned when the header names a codec that is not built in.
type ErrUnknownCodec struct {
	Name string
}

func (e *ErrUnknownCodec) Error() string {
	return fmt.Sprintf("snapshot: unknown codec %q", e.Name)
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
}
