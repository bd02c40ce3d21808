package stream

import (
	"io"

	"github.com/pkg/errors"
)

// Buffer is a fixed-length in-memory io.ReadWriteSeeker. Writes never grow
// it: a write that would run past the end fails with ErrOutOfSpace and
// writes nothing.
type Buffer struct {
	b   []byte
	off int64
}

// NewBuffer wraps b without copying.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{b: b}
}

// NewZeroBuffer allocates a zeroed buffer of n bytes.
func NewZeroBuffer(n int) *Buffer {
	return &Buffer{b: make([]byte, n)}
}

// NewContext is shorthand for a Cursor over NewBuffer(b).
func NewContext(b []byte) *Cursor {
	return NewCursor(NewBuffer(b))
}

func (b *Buffer) Bytes() []byte { return b.b }

func (b *Buffer) Len() int { return len(b.b) }

func (b *Buffer) Read(p []byte) (int, error) {
	if b.off >= int64(len(b.b)) {
		return 0, io.EOF
	}
	n := copy(p, b.b[b.off:])
	b.off += int64(n)
	return n, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	if b.off+int64(len(p)) > int64(len(b.b)) {
		return 0, errors.Wrapf(ErrOutOfSpace, "%d bytes at %d, buffer is %d", len(p), b.off, len(b.b))
	}
	n := copy(b.b[b.off:], p)
	b.off += int64(n)
	return n, nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.off + offset
	case io.SeekEnd:
		abs = int64(len(b.b)) + offset
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}
	if abs < 0 {
		return 0, ErrNegativeSeek
	}
	b.off = abs
	return abs, nil
}
