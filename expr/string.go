package expr

import (
	"io"

	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/stream"
)

// MaxStringLen bounds terminated string reads.
const MaxStringLen = 1 << 20

// String reads bytes from an offset until a NUL byte or the end of the
// stream. Whether a NUL is written back depends on how it was declared.
type String struct {
	at         Expression[int64]
	terminated bool
}

// ZString is a NUL-terminated string. End of stream also ends it on read;
// Assign always writes the terminator.
func ZString(at Expression[int64]) *String {
	return &String{at: at, terminated: true}
}

// TailString runs to the end of the stream (or a NUL). Assign writes no
// terminator.
func TailString(at Expression[int64]) *String {
	return &String{at: at}
}

func (s *String) Terminated() bool { return s.terminated }

func (s *String) At() Expression[int64] { return s.at }

func (s *String) Evaluate(ctx Context) (string, error) {
	off, err := seekTo(ctx, s.at)
	if err != nil {
		return "", err
	}
	var out []byte
	for {
		b, err := ctx.ReadFixedWidth(1, stream.LittleEndian)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", errors.Wrapf(err, "string at %d", off)
		}
		if b[0] == 0 {
			break
		}
		if len(out) == MaxStringLen {
			return "", errors.Wrapf(ErrStringTooLong, "string at %d", off)
		}
		out = append(out, b[0])
	}
	return string(out), nil
}

func (s *String) Assign(ctx Context, v string) error {
	off, err := seekTo(ctx, s.at)
	if err != nil {
		return err
	}
	b := []byte(v)
	if s.terminated {
		b = append(b, 0)
	}
	if err := ctx.WriteFixedWidth(b, stream.LittleEndian); err != nil {
		return errors.Wrapf(err, "string at %d", off)
	}
	return nil
}

func (s *String) Rebind(b Binder) Expression[string] {
	return &String{at: rebindOffset(s.at, b), terminated: s.terminated}
}

func (s *String) Visit(fn func(*Element)) {
	visitAll(fn, s.at)
}
