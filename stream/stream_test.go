package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorReadFixedWidth(t *testing.T) {
	c := NewContext([]byte{0x11, 0x22, 0x33, 0x44, 0x55})

	require.NoError(t, c.Seek(1))
	le, err := c.ReadFixedWidth(2, LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x22, 0x33}, le)

	// Cursor advanced past the first read.
	be, err := c.ReadFixedWidth(2, BigEndian)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0x44}, be)

	pos, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)

	_, err = c.ReadFixedWidth(1, LittleEndian)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestCursorShortRead(t *testing.T) {
	c := NewContext([]byte{1, 2, 3})
	require.NoError(t, c.Seek(2))
	_, err := c.ReadFixedWidth(4, LittleEndian)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestCursorWriteBigEndian(t *testing.T) {
	buf := NewZeroBuffer(4)
	c := NewCursor(buf)
	require.NoError(t, c.WriteFixedWidth([]byte{0x01, 0x02, 0x03, 0x04}, BigEndian))
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf.Bytes())
}

func TestCursorWriteDoesNotMutateInput(t *testing.T) {
	in := []byte{0xAA, 0xBB}
	c := NewCursor(NewZeroBuffer(2))
	require.NoError(t, c.WriteFixedWidth(in, BigEndian))
	assert.Equal(t, []byte{0xAA, 0xBB}, in)
}

func TestCursorReadOnly(t *testing.T) {
	c := NewCursor(bytes.NewReader([]byte{0, 0}))
	err := c.WriteFixedWidth([]byte{1}, LittleEndian)
	assert.True(t, errors.Is(err, ErrReadOnly))
}

func TestCursorWithBase(t *testing.T) {
	c := NewContext([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	sub := c.WithBase(4)

	require.NoError(t, sub.Seek(1))
	b, err := sub.ReadFixedWidth(1, LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, b)

	pos, err := sub.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	// Negative offsets are fine as long as the absolute position is not.
	require.NoError(t, sub.Seek(-4))
	err = sub.Seek(-5)
	assert.True(t, errors.Is(err, ErrNegativeSeek))
}

func TestBufferOutOfSpace(t *testing.T) {
	buf := NewZeroBuffer(3)
	_, err := buf.Seek(2, io.SeekStart)
	require.NoError(t, err)

	n, err := buf.Write([]byte{1, 2})
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, ErrOutOfSpace))
	assert.Equal(t, []byte{0, 0, 0}, buf.Bytes())
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"", LittleEndian, false},
		{"little", LittleEndian, false},
		{"le", LittleEndian, false},
		{"big", BigEndian, false},
		{"be", BigEndian, false},
		{"middle", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("\x04\x00\x00\x00header"), 64)

	for _, c := range []Compression{None, Zstd, LZ4} {
		t.Run(string(c), func(t *testing.T) {
			var framed bytes.Buffer
			require.NoError(t, Compress(c, &framed, payload))

			got, err := Decompress(c, &framed)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, None, c)

	c, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, c)

	_, err = ParseCompression("gzip")
	assert.Error(t, err)
}
