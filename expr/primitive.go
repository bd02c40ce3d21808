package expr

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/stream"
)

// Integer is the set of types usable as offsets.
type Integer interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64
}

// Scalar is the set of fixed-width primitives.
type Scalar interface {
	Integer | ~float32 | ~float64
}

// Width returns the encoded size of T in bytes.
func Width[T Scalar]() int {
	var z T
	return binary.Size(z)
}

// Primitive reads a fixed-width T at an offset with a selectable byte order.
// A nil offset reads at the current cursor position.
type Primitive[T Scalar] struct {
	at    Expression[int64]
	order stream.Order
}

// Read declares a read-only primitive.
func Read[T Scalar](at Expression[int64], order stream.Order) *Primitive[T] {
	return &Primitive[T]{at: at, order: order}
}

func (p *Primitive[T]) At() Expression[int64] { return p.at }

func (p *Primitive[T]) Order() stream.Order { return p.order }

func (p *Primitive[T]) Evaluate(ctx Context) (T, error) {
	var v T
	off, err := seekTo(ctx, p.at)
	if err != nil {
		return v, err
	}
	b, err := ctx.ReadFixedWidth(Width[T](), p.order)
	if err != nil {
		return v, errors.Wrapf(err, "read %d bytes at %d", Width[T](), off)
	}
	if _, err := binary.Decode(b, binary.LittleEndian, &v); err != nil {
		return v, errors.Wrap(err, "decode")
	}
	return v, nil
}

func (p *Primitive[T]) Rebind(b Binder) Expression[T] {
	return &Primitive[T]{at: rebindOffset(p.at, b), order: p.order}
}

func (p *Primitive[T]) Visit(fn func(*Element)) {
	visitAll(fn, p.at)
}

func (p *Primitive[T]) Extent() (int64, int, bool) {
	lit, ok := p.at.(*Value[int64])
	if !ok {
		return 0, 0, false
	}
	return lit.Get(), Width[T](), true
}

// WritablePrimitive is a Primitive that can also encode a T back to the
// position it reads from.
type WritablePrimitive[T Scalar] struct {
	Primitive[T]
}

// ReadWrite declares a writable primitive.
func ReadWrite[T Scalar](at Expression[int64], order stream.Order) *WritablePrimitive[T] {
	return &WritablePrimitive[T]{Primitive[T]{at: at, order: order}}
}

func (p *WritablePrimitive[T]) Rebind(b Binder) Expression[T] {
	return &WritablePrimitive[T]{Primitive[T]{at: rebindOffset(p.at, b), order: p.order}}
}

func (p *WritablePrimitive[T]) Assign(ctx Context, v T) error {
	off, err := seekTo(ctx, p.at)
	if err != nil {
		return err
	}
	b, err := binary.Append(make([]byte, 0, Width[T]()), binary.LittleEndian, v)
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	if err := ctx.WriteFixedWidth(b, p.order); err != nil {
		return errors.Wrapf(err, "write %d bytes at %d", len(b), off)
	}
	return nil
}
