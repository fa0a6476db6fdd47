// Package storage is the filesystem collaborator used by the table engine.
// Paths are slash separated and relative to the storage root.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Entry is one child of a listed directory.
type Entry struct {
	Name  string
	IsDir bool
}

// Storage is implemented by the local filesystem and S3. Write must publish
// the object atomically: readers observe either the old content or the new
// content, never a partial file. Missing objects are reported with an error
// wrapping fs.ErrNotExist.
type Storage interface {
	Write(ctx context.Context, filepath string, data io.Reader) error
	Read(ctx context.Context, filepath string) (io.ReadCloser, error)
	List(ctx context.Context, dir string) ([]Entry, error)
	Exists(ctx context.Context, filepath string) (bool, error)
	DirExists(ctx context.Context, dir string) (bool, error)
	MkdirAll(ctx context.Context, dir string) error
	Delete(ctx context.Context, filepath string) error

	// URI returns a location an external reader (DuckDB) can open directly.
	URI(filepath string) string
}

// ReadFile reads a whole object.
func ReadFile(ctx context.Context, s Storage, filepath string) ([]byte, error) {
	rc, err := s.Read(ctx, filepath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath, err)
	}
	return data, nil
}

// WriteFile writes a whole object.
func WriteFile(ctx context.Context, s Storage, filepath string, data []byte) error {
	return s.Write(ctx, filepath, bytes.NewReader(data))
}
