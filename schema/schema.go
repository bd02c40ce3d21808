// Package schema declares binary structures and reads and writes instances
// of them.
//
// A Schema is a set of named fields, each built from an expr expression.
// Fields are placeholders: using one inside another field's expression (for
// example as an offset) makes the second depend on the first. The first time
// a schema is used its Layout is built: a forward order in which every field
// is read after the fields it depends on. Writing runs the same steps in
// reverse. The layout is built once, cached with any error, and shared by
// every Instance.
//
// Schemas are meant to be declared at package level and are safe for
// concurrent use once declared. Instances are not.
package schema

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/expr"
)

// Access selects which passes a field takes part in.
type Access uint8

const (
	Readable Access = 1 << iota
	Writable
	ReadWrite = Readable | Writable

	// Hidden fields get no instance storage. Other fields may still
	// reference them; the reference evaluates the hidden field's expression
	// in place.
	Hidden Access = 0
)

func (a Access) String() string {
	switch a {
	case Hidden:
		return "none"
	case Readable:
		return "ro"
	case Writable:
		return "wo"
	case ReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// ParseAccess accepts the names String returns.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "none", "hidden":
		return Hidden, nil
	case "ro", "read":
		return Readable, nil
	case "wo", "write":
		return Writable, nil
	case "rw", "readwrite":
		return ReadWrite, nil
	default:
		return 0, errors.Errorf("access must be one of none, ro, wo, rw, got: %s", s)
	}
}

// Schema is the type-level description of one binary record shape.
type Schema struct {
	name string
	log  *slog.Logger

	mu    sync.Mutex
	decls []*declaration
	built bool

	once   sync.Once
	layout *Layout
	err    error
}

// Option configures a Schema.
type Option func(*Schema)

// WithLogger sets the logger layout builds report to. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Schema) {
		s.log = log
	}
}

func New(name string, opts ...Option) *Schema {
	s := &Schema{name: name}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

func (s *Schema) Name() string { return s.name }

func (s *Schema) String() string { return s.name }

// Fields returns the declared elements in declaration order.
func (s *Schema) Fields() []*expr.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*expr.Element, len(s.decls))
	for i, d := range s.decls {
		out[i] = d.elem
	}
	return out
}

// Field is a declared field of value type T. It is also an
// expr.Expression[T] placeholder: other fields of the same schema use it to
// refer to this field's value.
type Field[T any] struct {
	schema *Schema
	elem   *expr.Element
	access Access
	e      expr.Expression[T]

	forward string // set for placeholders returned by Forward
}

var _ expr.Expression[int] = (*Field[int])(nil)

// Declare adds a field to s. Declaring after the schema's layout has been
// built panics.
//
// Requesting Writable for an expression that cannot be assigned is not
// rejected here; it makes the layout build fail.
func Declare[T any](s *Schema, name string, e expr.Expression[T], access Access) *Field[T] {
	f := &Field[T]{schema: s, access: access, e: e}
	s.declare(name, func(elem *expr.Element) *declaration {
		f.elem = elem
		return newDeclaration(f)
	})
	return f
}

// Var declares a field that is read and written.
func Var[T any](s *Schema, name string, e expr.Writable[T]) *Field[T] {
	return Declare[T](s, name, e, ReadWrite)
}

// View declares a field that is read but never written back.
func View[T any](s *Schema, name string, e expr.Expression[T]) *Field[T] {
	return Declare(s, name, e, Readable)
}

// Param declares a field without storage, usable only as a value provider
// for other fields.
func Param[T any](s *Schema, name string, e expr.Expression[T]) *Field[T] {
	return Declare(s, name, e, Hidden)
}

// Forward returns a placeholder for the field of s that is declared under
// name, possibly later. It resolves when the layout is built; a missing
// field or one of a different value type makes the build fail.
func Forward[T any](s *Schema, name string) *Field[T] {
	return &Field[T]{schema: s, forward: name}
}

func (s *Schema) declarations() []*declaration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decls
}

func (s *Schema) lookup(name string) *declaration {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.decls {
		if d.elem.Name() == name {
			return d
		}
	}
	return nil
}

func (s *Schema) declare(name string, mk func(*expr.Element) *declaration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built {
		panic(fmt.Sprintf("schema: field %s declared on %s after its layout was built", name, s.name))
	}
	s.decls = append(s.decls, mk(expr.NewElement(name, len(s.decls))))
}

func (f *Field[T]) Schema() *Schema { return f.schema }

// Element returns the field's identity. For a Forward placeholder it is
// the identity of the field it resolves to, or nil.
func (f *Field[T]) Element() *expr.Element {
	if f.forward != "" {
		return f.resolve()
	}
	return f.elem
}

func (f *Field[T]) Name() string {
	if f.forward != "" {
		return f.forward
	}
	return f.elem.Name()
}

func (f *Field[T]) resolve() *expr.Element {
	d := f.schema.lookup(f.forward)
	if d == nil {
		return nil
	}
	if _, ok := d.newSlot().(*expr.Slot[T]); !ok {
		return nil
	}
	return d.elem
}

func (f *Field[T]) Access() Access { return f.access }

// Expr returns the template expression the field was declared with.
func (f *Field[T]) Expr() expr.Expression[T] { return f.e }

// Evaluate always fails: a field's value lives in an instance.
func (f *Field[T]) Evaluate(expr.Context) (T, error) {
	var zero T
	return zero, errors.Wrapf(expr.ErrUnbound, "%s.%s", f.schema.name, f.Name())
}

func (f *Field[T]) Rebind(b expr.Binder) expr.Expression[T] {
	bound, ok := b.Bind(f.Element()).(expr.Expression[T])
	if !ok {
		panic(fmt.Sprintf("schema: %s.%s bound to an instance of another schema", f.schema.name, f.Name()))
	}
	return bound
}

func (f *Field[T]) Visit(fn func(*expr.Element)) {
	elem := f.Element()
	if elem == nil {
		// Unresolvable forward reference: report an element no schema
		// declares so the build names it.
		var zero T
		elem = expr.NewElement(fmt.Sprintf("%s (%T)", f.forward, zero), -1)
	}
	fn(elem)
}
