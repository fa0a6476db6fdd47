package storage

import (
	"bytes"
	"context"
	"sync"
)

// Buffer stages an encoded file in memory so its final size is known before
// it is published to a Storage.
type Buffer struct {
	buf  *bytes.Buffer
	size int64
	mu   sync.Mutex
}

func NewBuffer() *Buffer {
	return &Buffer{
		buf: bytes.NewBuffer(nil),
	}
}

func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err = b.buf.Write(p)
	b.size += int64(n)
	return
}

func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
	b.size = 0
}

// Flush publishes the staged bytes to s at filepath and resets the buffer.
// It returns the number of bytes written.
func (b *Buffer) Flush(ctx context.Context, s Storage, filepath string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.size
	if err := s.Write(ctx, filepath, bytes.NewReader(b.buf.Bytes())); err != nil {
		return 0, err
	}
	b.buf.Reset()
	b.size = 0
	return size, nil
}
