// Package expr holds the expression graph a schema is declared with.
//
// An expression describes how to obtain a value (and, for writable
// expressions, how to store one) independent of any stream or instance.
// Expressions declared in a schema are read-only templates: Rebind returns a
// substituted copy bound to one instance's storage and never mutates the
// receiver.
package expr

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/stream"
)

// Context is the stream cursor expressions evaluate against.
type Context = stream.Context

var (
	// ErrUnbound is returned when a schema placeholder is evaluated before
	// it has been rebound to an instance.
	ErrUnbound = errors.New("expr: placeholder evaluated without an instance")
	// ErrNegativeOffset is returned when an offset expression yields a
	// position before the context base.
	ErrNegativeOffset = errors.New("expr: negative offset")
	// ErrStringTooLong is returned when a terminated string exceeds MaxStringLen.
	ErrStringTooLong = errors.New("expr: string exceeds maximum length")
)

// Here is the offset of a field read wherever the cursor is, right after
// the previous step.
// Writes run in reverse order, so such fields only round trip when nothing
// after them moves the cursor.
var Here Expression[int64]

// Element is the stable identity of one schema-declared field. Elements are
// compared by pointer and used as map keys.
type Element struct {
	name  string
	index int
}

// NewElement is called by schema declaration; index is the declaration
// position within its schema.
func NewElement(name string, index int) *Element {
	return &Element{name: name, index: index}
}

func (e *Element) Name() string { return e.name }

func (e *Element) Index() int { return e.index }

func (e *Element) String() string {
	return fmt.Sprintf("%s#%d", e.name, e.index)
}

// Binder resolves an element placeholder for one instance. The returned
// value is an Expression[T] of the element's value type.
type Binder interface {
	Bind(e *Element) any
}

// Node is the untyped part of every expression.
type Node interface {
	// Visit calls fn for every element this expression references directly
	// (not through the referenced element's own expression).
	Visit(fn func(*Element))
}

// Expression computes a value of type T.
type Expression[T any] interface {
	Node
	Evaluate(ctx Context) (T, error)
	Rebind(b Binder) Expression[T]
}

// Writable is an expression that can also serialize a T back to where it
// reads it from.
type Writable[T any] interface {
	Expression[T]
	Assign(ctx Context, v T) error
}

// Extent is implemented by expressions whose byte range is known without
// evaluating anything.
type Extent interface {
	Extent() (start int64, width int, ok bool)
}

// Deps returns the elements n references, in visit order, without duplicates.
func Deps(n Node) []*Element {
	var deps []*Element
	seen := make(map[*Element]bool)
	n.Visit(func(e *Element) {
		if !seen[e] {
			seen[e] = true
			deps = append(deps, e)
		}
	})
	return deps
}

// IsWritable reports whether n supports assignment.
func IsWritable[T any](e Expression[T]) bool {
	_, ok := e.(Writable[T])
	return ok
}

func visitAll(fn func(*Element), nodes ...Node) {
	for _, n := range nodes {
		if n != nil {
			n.Visit(fn)
		}
	}
}

func rebindOffset(at Expression[int64], b Binder) Expression[int64] {
	if at == nil {
		return nil
	}
	return at.Rebind(b)
}

// seekTo moves ctx to the offset at evaluates to. A nil offset leaves the
// cursor where the previous read or write stopped.
func seekTo(ctx Context, at Expression[int64]) (int64, error) {
	if at == nil {
		return ctx.Position()
	}
	off, err := at.Evaluate(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "offset")
	}
	if off < 0 {
		return 0, errors.Wrapf(ErrNegativeOffset, "%d", off)
	}
	if err := ctx.Seek(off); err != nil {
		return 0, err
	}
	return off, nil
}
