package schema

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/expr"
	"github.com/alexhholmes/binlayout/internal/analyzer"
)

// ErrBuild matches every *BuildError.
var ErrBuild = errors.New("schema: layout build failed")

// BuildError reports why a schema's layout could not be built. It is cached:
// every use of the schema returns the same error.
type BuildError struct {
	Schema   string
	Problems []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("schema %s: layout build failed: %s", e.Schema, strings.Join(e.Problems, "; "))
}

func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

// slot is the type-erased view of an *expr.Slot[T].
type slot interface {
	Populated() bool
	Any() any
}

// step is one instance-bound entry of the layout.
type step struct {
	read  func(expr.Context) error
	write func(expr.Context) error
}

// declaration holds the closures for one field, built once when the field
// is declared. They capture the field's value type, so instance
// construction and the read/write passes never look it up again.
type declaration struct {
	elem     *expr.Element
	access   Access
	node     expr.Node
	canWrite bool
	region   *analyzer.Region
	inner    *Schema // set for nested structures

	newSlot func() slot
	ref     func(slot) any
	rebind  func(expr.Binder) any
	compile func(bound any, s slot) step
	set     func(s slot, v any) error
}

func newDeclaration[T any](f *Field[T]) *declaration {
	d := &declaration{
		elem:     f.elem,
		access:   f.access,
		node:     f.e,
		canWrite: expr.IsWritable(f.e),
	}
	if ext, ok := f.e.(expr.Extent); ok {
		if start, width, ok := ext.Extent(); ok {
			d.region = &analyzer.Region{Start: start, Size: width}
		}
	}
	if n, ok := f.e.(nester); ok {
		d.inner = n.Inner()
	}

	d.newSlot = func() slot {
		return new(expr.Slot[T])
	}
	d.ref = func(s slot) any {
		return expr.Ref[T](s.(*expr.Slot[T]))
	}
	d.rebind = func(b expr.Binder) any {
		return f.e.Rebind(b)
	}
	d.compile = func(bound any, s slot) step {
		e := bound.(expr.Expression[T])
		sl := s.(*expr.Slot[T])

		var st step
		if f.access&Readable != 0 {
			st.read = func(ctx expr.Context) error {
				v, err := e.Evaluate(ctx)
				if err != nil {
					// A structure that failed halfway keeps what it read.
					if inst, ok := any(v).(*Instance); ok && inst != nil {
						sl.Set(v)
					}
					return err
				}
				sl.Set(v)
				return nil
			}
		}
		if f.access&Writable != 0 {
			w, ok := e.(expr.Writable[T])
			if !ok {
				// The template was writable; its rebound copy must be too.
				st.write = func(expr.Context) error {
					return errors.Errorf("%T lost its assignment when rebound", f.e)
				}
				return st
			}
			st.write = func(ctx expr.Context) error {
				return w.Assign(ctx, sl.Get())
			}
		}
		return st
	}
	d.set = func(s slot, v any) error {
		tv, ok := v.(T)
		if !ok {
			var zero T
			return errors.Errorf("%s: cannot assign %T to a field of type %T", f.elem.Name(), v, zero)
		}
		s.(*expr.Slot[T]).Set(tv)
		return nil
	}
	return d
}

// Entry is one compiled unit of a layout: a materialized field and the
// passes it takes part in.
type Entry struct {
	Element *expr.Element
	Access  Access

	decl *declaration
}

func (e Entry) HasRead() bool { return e.Access&Readable != 0 }

func (e Entry) HasWrite() bool { return e.Access&Writable != 0 }

// Layout is the compiled, ordered form of a schema. It is immutable and
// shared by every instance of the schema.
type Layout struct {
	schema   *Schema
	decls    []*declaration
	index    map[*expr.Element]int
	order    []int
	entries  []Entry
	warnings []string
}

// Layout builds the schema's layout on first use and returns the cached
// result afterwards. Concurrent first calls block until one build finishes;
// all callers observe the same *Layout or the same error.
func (s *Schema) Layout() (*Layout, error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.built = true
		decls := s.decls
		s.mu.Unlock()

		s.layout, s.err = build(s, decls)
		if s.err != nil {
			s.log.Error("layout build failed", "schema", s.name, "err", s.err)
		}
	})
	return s.layout, s.err
}

// MustLayout is like Layout but panics if the build failed.
func (s *Schema) MustLayout() *Layout {
	l, err := s.Layout()
	if err != nil {
		panic(err)
	}
	return l
}

func build(s *Schema, decls []*declaration) (*Layout, error) {
	l := &Layout{
		schema: s,
		decls:  decls,
		index:  make(map[*expr.Element]int, len(decls)),
	}
	for i, d := range decls {
		l.index[d.elem] = i
	}

	in := make([]analyzer.Decl, len(decls))
	for i, d := range decls {
		ad := analyzer.Decl{
			Name:     d.elem.Name(),
			Read:     d.access&Readable != 0,
			Write:    d.access&Writable != 0,
			CanWrite: d.canWrite,
			Region:   d.region,
		}
		for _, dep := range expr.Deps(d.node) {
			if j, ok := l.index[dep]; ok && decls[j].elem == dep {
				ad.Deps = append(ad.Deps, j)
			} else {
				ad.Foreign = append(ad.Foreign, dep.Name())
			}
		}
		in[i] = ad
	}

	if problems := checkNesting(s, decls); len(problems) > 0 {
		return nil, &BuildError{Schema: s.name, Problems: problems}
	}

	analyzed, err := analyzer.Analyze(s.name, in)
	if err != nil {
		return nil, &BuildError{Schema: s.name, Problems: analyzed.Errors}
	}
	for _, w := range analyzed.Warnings {
		s.log.Warn("layout warning", "schema", s.name, "warning", w)
	}

	l.order = analyzed.Order
	l.warnings = analyzed.Warnings
	for _, i := range l.order {
		d := decls[i]
		if d.access == Hidden {
			continue
		}
		l.entries = append(l.entries, Entry{Element: d.elem, Access: d.access, decl: d})
	}

	s.log.Debug("layout built", "schema", s.name, "fields", len(decls), "entries", len(l.entries))
	return l, nil
}

// nester is implemented by expressions whose value is an instance of
// another schema.
type nester interface {
	Inner() *Schema
}

// checkNesting rejects structures that contain s, directly or through other
// structures, and reports the build errors of the schemas s nests. Inner
// layouts are only built once no path leads back to s, so a build never
// waits on itself.
func checkNesting(s *Schema, decls []*declaration) []string {
	if path := nestingPath(s, decls); path != nil {
		return []string{fmt.Sprintf("layout %s contains itself (%s)", s.name, strings.Join(path, " -> "))}
	}

	var problems []string
	seen := make(map[*Schema]bool)
	for _, d := range decls {
		if d.inner == nil || seen[d.inner] {
			continue
		}
		seen[d.inner] = true
		if _, err := d.inner.Layout(); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", d.elem.Name(), err))
		}
	}
	return problems
}

// nestingPath returns the chain of schema names from s back to s, or nil.
func nestingPath(s *Schema, decls []*declaration) []string {
	visited := make(map[*Schema]bool)
	var walk func(cur *Schema, ds []*declaration, path []string) []string
	walk = func(cur *Schema, ds []*declaration, path []string) []string {
		path = append(path, cur.name)
		for _, d := range ds {
			if d.inner == nil {
				continue
			}
			if d.inner == s {
				return append(path, s.name)
			}
			if visited[d.inner] {
				continue
			}
			visited[d.inner] = true
			if found := walk(d.inner, d.inner.declarations(), path); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(s, decls, nil)
}

func (l *Layout) Schema() *Schema { return l.schema }

// Entries returns the forward sequence. The slice is shared by every
// instance and must not be modified.
func (l *Layout) Entries() []Entry { return l.entries }

// Warnings returns non-fatal findings of the build, such as overlapping
// fixed-offset fields.
func (l *Layout) Warnings() []string { return l.warnings }

// ReadOrder returns the fields the read pass visits, in order.
func (l *Layout) ReadOrder() []*expr.Element {
	var out []*expr.Element
	for _, e := range l.entries {
		if e.HasRead() {
			out = append(out, e.Element)
		}
	}
	return out
}

// WriteOrder returns the fields the write pass visits, in order: the mirror
// of the forward sequence, restricted to fields with a write step.
func (l *Layout) WriteOrder() []*expr.Element {
	var out []*expr.Element
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].HasWrite() {
			out = append(out, l.entries[i].Element)
		}
	}
	return out
}
