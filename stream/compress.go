package stream

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Compression names a container codec wrapped around a structure payload.
// Asset archives commonly ship their tables zstd- or lz4-framed.
type Compression string

const (
	None Compression = "none"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", None:
		return None, nil
	case Zstd, LZ4:
		return Compression(s), nil
	default:
		return "", errors.Errorf("unknown compression: %s (expected none, zstd or lz4)", s)
	}
}

// Decompress reads all of r and returns the decoded payload.
func Decompress(c Compression, r io.Reader) ([]byte, error) {
	switch c {
	case "", None:
		return io.ReadAll(r)
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "zstd reader")
		}
		defer dec.Close()
		out, err := io.ReadAll(dec)
		return out, errors.Wrap(err, "zstd decode")
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(r))
		return out, errors.Wrap(err, "lz4 decode")
	default:
		return nil, errors.Errorf("unknown compression: %s", c)
	}
}

// Compress encodes data with c and writes the frame to w.
func Compress(c Compression, w io.Writer, data []byte) error {
	switch c {
	case "", None:
		_, err := w.Write(data)
		return err
	case Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return errors.Wrap(err, "zstd writer")
		}
		if _, err := io.Copy(enc, bytes.NewReader(data)); err != nil {
			enc.Close()
			return errors.Wrap(err, "zstd encode")
		}
		return errors.Wrap(enc.Close(), "zstd close")
	case LZ4:
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(data); err != nil {
			return errors.Wrap(err, "lz4 encode")
		}
		return errors.Wrap(zw.Close(), "lz4 close")
	default:
		return errors.Errorf("unknown compression: %s", c)
	}
}
