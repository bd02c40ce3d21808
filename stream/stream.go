// Package stream provides the cursor the structure engine reads from and
// writes to: positioned fixed-width access over a seekable byte source,
// relative to a base offset, with byte-order reversal.
package stream

import (
	"io"

	"github.com/pkg/errors"
)

// Order selects the byte order of a fixed-width value in the stream.
type Order uint8

const (
	LittleEndian Order = iota
	BigEndian
)

func (o Order) String() string {
	switch o {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "unknown"
	}
}

// ParseOrder accepts "little", "big", "le" and "be". The empty string is little.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "little", "le":
		return LittleEndian, nil
	case "big", "be":
		return BigEndian, nil
	default:
		return 0, errors.Errorf("endian must be 'little' or 'big', got: %s", s)
	}
}

var (
	ErrNegativeSeek = errors.New("stream: seek to negative position")
	ErrReadOnly     = errors.New("stream: sink is not writable")
	ErrOutOfSpace   = errors.New("stream: write past end of buffer")
)

// Context is the cursor handed to every Read and Write pass. Offsets passed
// to Seek and returned by Position are relative to the context's base.
//
// Bytes exchanged through ReadFixedWidth and WriteFixedWidth are always in
// little-endian order; the context reverses them when order is BigEndian.
type Context interface {
	Seek(offset int64) error
	Position() (int64, error)
	ReadFixedWidth(width int, order Order) ([]byte, error)
	WriteFixedWidth(b []byte, order Order) error
	// WithBase returns a view of the same stream whose offset 0 is at
	// offset (relative to this context's base).
	WithBase(offset int64) Context
}

// Cursor implements Context over an io.ReadSeeker. It is writable when the
// underlying source also implements io.Writer.
type Cursor struct {
	rs   io.ReadSeeker
	w    io.Writer
	base int64
}

var _ Context = (*Cursor)(nil)

func NewCursor(rs io.ReadSeeker) *Cursor {
	c := &Cursor{rs: rs}
	if w, ok := rs.(io.Writer); ok {
		c.w = w
	}
	return c
}

// Base returns the absolute stream offset of this cursor's position 0.
func (c *Cursor) Base() int64 {
	return c.base
}

func (c *Cursor) Seek(offset int64) error {
	abs := c.base + offset
	if abs < 0 {
		return errors.Wrapf(ErrNegativeSeek, "offset %d (base %d)", offset, c.base)
	}
	if _, err := c.rs.Seek(abs, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to %d", abs)
	}
	return nil
}

func (c *Cursor) Position() (int64, error) {
	abs, err := c.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "query position")
	}
	return abs - c.base, nil
}

func (c *Cursor) ReadFixedWidth(width int, order Order) ([]byte, error) {
	buf := make([]byte, width)
	if _, err := io.ReadFull(c.rs, buf); err != nil {
		return nil, err
	}
	if order == BigEndian {
		Reverse(buf)
	}
	return buf, nil
}

func (c *Cursor) WriteFixedWidth(b []byte, order Order) error {
	if c.w == nil {
		return ErrReadOnly
	}
	if order == BigEndian {
		rev := make([]byte, len(b))
		copy(rev, b)
		Reverse(rev)
		b = rev
	}
	n, err := c.w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

func (c *Cursor) WithBase(offset int64) Context {
	return &Cursor{rs: c.rs, w: c.w, base: c.base + offset}
}

// Reverse reverses b in place.
func Reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
