// Package loader turns parsed layout declarations into schemas at runtime.
package loader

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/expr"
	"github.com/alexhholmes/binlayout/internal/analyzer"
	"github.com/alexhholmes/binlayout/internal/parser"
	"github.com/alexhholmes/binlayout/schema"
	"github.com/alexhholmes/binlayout/stream"
)

// Set is the schemas declared by one layout file.
type Set struct {
	names   []string
	layouts map[string]*parser.TypeLayout
	schemas map[string]*schema.Schema
}

// LoadFile parses a .go or .yaml file and loads its layouts.
func LoadFile(filename string, opts ...schema.Option) (*Set, error) {
	layouts, err := parser.ParseFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return Load(layouts, opts...)
}

// Load declares one schema per layout. Fields are declared in file order;
// offsets naming a later field use a forward placeholder. Layouts are not
// built here, see Set.Build.
func Load(layouts []*parser.TypeLayout, opts ...schema.Option) (*Set, error) {
	set := &Set{
		layouts: make(map[string]*parser.TypeLayout, len(layouts)),
		schemas: make(map[string]*schema.Schema, len(layouts)),
	}
	for _, l := range layouts {
		if _, dup := set.layouts[l.Name]; dup {
			return nil, errors.Errorf("duplicate layout %s", l.Name)
		}
		set.names = append(set.names, l.Name)
		set.layouts[l.Name] = l
	}

	l := &loader{set: set, opts: opts, loading: make(map[string]bool)}
	for _, name := range set.names {
		if _, err := l.schema(name); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Names returns layout names in file order.
func (s *Set) Names() []string { return s.names }

// Schema returns the schema for a layout.
func (s *Set) Schema(name string) (*schema.Schema, bool) {
	sch, ok := s.schemas[name]
	return sch, ok
}

// Size returns the annotated size of a layout, 0 if none was given.
func (s *Set) Size(name string) int {
	if l, ok := s.layouts[name]; ok && l.Anno != nil {
		return l.Anno.Size
	}
	return 0
}

// Layout returns the parsed declaration a schema was loaded from.
func (s *Set) Layout(name string) (*parser.TypeLayout, bool) {
	l, ok := s.layouts[name]
	return l, ok
}

// Build builds every layout and returns the first failure.
func (s *Set) Build() error {
	for _, name := range s.names {
		if _, err := s.schemas[name].Layout(); err != nil {
			return err
		}
	}
	return nil
}

type loader struct {
	set     *Set
	opts    []schema.Option
	loading map[string]bool
}

func (l *loader) schema(name string) (*schema.Schema, error) {
	if s, ok := l.set.schemas[name]; ok {
		return s, nil
	}
	layout, ok := l.set.layouts[name]
	if !ok {
		return nil, errors.Errorf("unknown layout %s", name)
	}
	if l.loading[name] {
		return nil, errors.Errorf("layout %s contains itself", name)
	}
	l.loading[name] = true
	defer delete(l.loading, name)

	b := &builder{
		loader: l,
		layout: layout,
		s:      schema.New(name, l.opts...),
		fields: make(map[string]any),
	}
	for _, f := range layout.Fields {
		if err := b.declare(f); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", name, f.Name)
		}
	}
	l.set.schemas[name] = b.s
	return b.s, nil
}

type builder struct {
	loader *loader
	layout *parser.TypeLayout
	s      *schema.Schema
	fields map[string]any // name → *schema.Field[T]
}

type fieldSpec struct {
	name   string
	layout *parser.FieldLayout
	at     expr.Expression[int64]
	order  stream.Order
	access schema.Access
}

func (b *builder) declare(f parser.Field) error {
	fl := f.Layout
	spec := fieldSpec{name: f.Name, layout: fl, access: schema.ReadWrite}
	if fl.IsLiteral() {
		spec.access = schema.Readable
	}
	if fl.Access != "" {
		access, err := schema.ParseAccess(fl.Access)
		if err != nil {
			return err
		}
		spec.access = access
	}

	endian := fl.Endian
	if endian == "" && b.layout.Anno != nil {
		endian = b.layout.Anno.Endian
	}
	order, err := stream.ParseOrder(endian)
	if err != nil {
		return err
	}
	spec.order = order

	if spec.at, err = b.offset(fl.At); err != nil {
		return err
	}

	if declare, ok := scalarDecls[fl.Type]; ok {
		return declare(b, spec)
	}

	if fl.IsLiteral() {
		return errors.Errorf("literal of non-numeric type %s", fl.Type)
	}
	switch fl.Type {
	case analyzer.ZString:
		b.fields[f.Name] = schema.Declare[string](b.s, f.Name, expr.ZString(spec.at), spec.access)
	case analyzer.TailString:
		b.fields[f.Name] = schema.Declare[string](b.s, f.Name, expr.TailString(spec.at), spec.access)
	default:
		inner, err := b.loader.schema(fl.Type)
		if err != nil {
			return err
		}
		b.fields[f.Name] = schema.Declare[*schema.Instance](b.s, f.Name, schema.Nested(inner, spec.at), spec.access)
	}
	return nil
}

// offset folds the tag's terms into one expression; nil reads at the cursor.
func (b *builder) offset(terms []parser.Term) (expr.Expression[int64], error) {
	var acc expr.Expression[int64]
	for _, t := range terms {
		var e expr.Expression[int64]
		if t.Field == "" {
			e = expr.Lit(t.Value)
		} else {
			ref, err := b.ref(t.Field)
			if err != nil {
				return nil, err
			}
			e = ref
		}
		switch {
		case acc == nil && t.Neg:
			if lit, ok := e.(*expr.Value[int64]); ok {
				acc = expr.Lit(-lit.Get())
			} else {
				acc = expr.Sub(expr.Lit[int64](0), e)
			}
		case acc == nil:
			acc = e
		case t.Neg:
			acc = expr.Sub(acc, e)
		default:
			acc = expr.Add(acc, e)
		}
	}
	return acc, nil
}

// ref returns the offset value of an integer field of the same layout.
func (b *builder) ref(name string) (expr.Expression[int64], error) {
	f, ok := b.layout.Lookup(name)
	if !ok {
		return nil, errors.Errorf("offset refers to unknown field %s", name)
	}
	switch f.Layout.Type {
	case "u8":
		return fieldOffset[uint8](b, name), nil
	case "i8":
		return fieldOffset[int8](b, name), nil
	case "u16":
		return fieldOffset[uint16](b, name), nil
	case "i16":
		return fieldOffset[int16](b, name), nil
	case "u32":
		return fieldOffset[uint32](b, name), nil
	case "i32":
		return fieldOffset[int32](b, name), nil
	case "u64":
		return fieldOffset[uint64](b, name), nil
	case "i64":
		return fieldOffset[int64](b, name), nil
	default:
		return nil, errors.Errorf("offset refers to %s, which is %s, not an integer", name, f.Layout.Type)
	}
}

func fieldOffset[T expr.Integer](b *builder, name string) expr.Expression[int64] {
	if f, ok := b.fields[name].(*schema.Field[T]); ok {
		return expr.Offset[T](f)
	}
	return expr.Offset[T](schema.Forward[T](b.s, name))
}

var scalarDecls = map[string]func(*builder, fieldSpec) error{
	"u8":  func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseUint[uint8](8)) },
	"i8":  func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseInt[int8](8)) },
	"u16": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseUint[uint16](16)) },
	"i16": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseInt[int16](16)) },
	"u32": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseUint[uint32](32)) },
	"i32": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseInt[int32](32)) },
	"u64": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseUint[uint64](64)) },
	"i64": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseInt[int64](64)) },
	"f32": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseFloat[float32](32)) },
	"f64": func(b *builder, f fieldSpec) error { return declareScalar(b, f, parseFloat[float64](64)) },
}

func declareScalar[T expr.Scalar](b *builder, f fieldSpec, parse func(string) (T, error)) error {
	var e expr.Expression[T]
	switch {
	case f.layout.IsLiteral():
		v, err := parse(f.layout.Literal)
		if err != nil {
			return errors.Wrapf(err, "literal %s", f.layout.Literal)
		}
		e = expr.Lit(v)
	case f.access&schema.Writable != 0:
		e = expr.ReadWrite[T](f.at, f.order)
	default:
		e = expr.Read[T](f.at, f.order)
	}
	b.fields[f.name] = schema.Declare(b.s, f.name, e, f.access)
	return nil
}

func parseUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseUint(s, 0, bits)
		return T(v), err
	}
}

func parseInt[T ~int8 | ~int16 | ~int32 | ~int64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseInt(s, 0, bits)
		return T(v), err
	}
}

func parseFloat[T ~float32 | ~float64](bits int) func(string) (T, error) {
	return func(s string) (T, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), bits)
		return T(v), err
	}
}
