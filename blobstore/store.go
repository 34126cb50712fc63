package blobstore

import (
	"context"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for reading and writing named blobs.
type Store interface {
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the full content of a blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names with the given prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// CurrentName is the blob holding the name of the published snapshot.
const CurrentName = "CURRENT"

// Publish points CurrentName at name.
func Publish(ctx context.Context, s Store, name string) error {
	return s.Put(ctx, CurrentName, []byte(name))
}

// Current returns the published snapshot name. It returns ErrNotFound when
// nothing was published.
func Current(ctx context.Context, s Store) (string, error) {
	b, err := s.Get(ctx, CurrentName)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return "", ErrNotFound
	}
	return name, nil
}

// Exists reports whether name is present in s.
func Exists(ctx context.Context, s Store, name string) (bool, error) {
	names, err := s.List(ctx, name)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func hasPrefix(name, prefix string) bool {
	return prefix == "" || strings.HasPrefix(name, prefix)
}
