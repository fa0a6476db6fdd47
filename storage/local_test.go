package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageReadWrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, WriteFile(ctx, s, "db.db/t/snapshot/LATEST", []byte("snapshot-1")))
	data, err := ReadFile(ctx, s, "db.db/t/snapshot/LATEST")
	require.NoError(t, err)
	assert.Equal(t, "snapshot-1", string(data))

	// overwrite replaces the content in place
	require.NoError(t, WriteFile(ctx, s, "db.db/t/snapshot/LATEST", []byte("snapshot-2")))
	data, err = ReadFile(ctx, s, "db.db/t/snapshot/LATEST")
	require.NoError(t, err)
	assert.Equal(t, "snapshot-2", string(data))

	entries, err := s.List(ctx, "db.db/t/snapshot")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "LATEST"}}, entries, "no staged temp files should remain")
}

func TestLocalStorageMissing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = ReadFile(ctx, s, "nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)

	_, err = s.List(ctx, "nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)

	ok, err := s.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DirExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "nope"))
}

func TestLocalStorageListAndExists(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, WriteFile(ctx, s, "t/bucket-0/data-a-0.parquet", []byte("x")))
	require.NoError(t, s.MkdirAll(ctx, "t/manifest"))

	entries, err := s.List(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "bucket-0", IsDir: true}, {Name: "manifest", IsDir: true}}, entries)

	ok, err := s.Exists(ctx, "t/bucket-0/data-a-0.parquet")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "t/bucket-0")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not files")

	ok, err = s.DirExists(ctx, "t/manifest")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(s.URI("t/bucket-0/data-a-0.parquet"))
	assert.NoError(t, err)
}

func TestBufferFlush(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	b := NewBuffer()
	_, _ = b.Write([]byte("hello "))
	_, _ = b.Write([]byte("world"))
	assert.Equal(t, int64(11), b.Size())

	n, err := b.Flush(ctx, s, "f.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, int64(0), b.Size())

	data, err := ReadFile(ctx, s, "f.bin")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}
