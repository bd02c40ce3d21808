package schema

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/expr"
)

// ErrUnpopulated is returned by CheckPopulated.
var ErrUnpopulated = errors.New("schema: fields never read or assigned")

// Instance is one occurrence of a schema: storage for every materialized
// field plus the schema's expressions rebound to that storage.
//
// An instance is not safe for concurrent use. After a failed Read, fields
// before the failing one hold what was read; later fields are undefined.
type Instance struct {
	layout *Layout
	slots  []slot // by declaration index, nil for hidden fields
	steps  []step // parallel to layout.entries
}

// New returns an instance with zeroed storage.
func (s *Schema) New() (*Instance, error) {
	l, err := s.Layout()
	if err != nil {
		return nil, err
	}
	return l.NewInstance(), nil
}

// Read creates an instance and runs its read pass. On failure the partially
// read instance is returned along with the error.
func (s *Schema) Read(ctx expr.Context) (*Instance, error) {
	inst, err := s.New()
	if err != nil {
		return nil, err
	}
	return inst, inst.Read(ctx)
}

// NewInstance allocates storage and rebinds every entry's expression to it.
// Each expression is walked once here, not on every read.
func (l *Layout) NewInstance() *Instance {
	inst := &Instance{
		layout: l,
		slots:  make([]slot, len(l.decls)),
		steps:  make([]step, len(l.entries)),
	}
	for _, ent := range l.entries {
		inst.slots[ent.Element.Index()] = ent.decl.newSlot()
	}

	b := &binder{inst: inst, bound: make(map[*expr.Element]any)}
	for i, ent := range l.entries {
		d := ent.decl
		inst.steps[i] = d.compile(d.rebind(b), inst.slots[d.elem.Index()])
	}
	return inst
}

// binder substitutes field placeholders: materialized fields become
// references to this instance's slots, hidden fields their own rebound
// expression. Results are memoized so a field referenced many times is
// rebound once.
type binder struct {
	inst  *Instance
	bound map[*expr.Element]any
}

func (b *binder) Bind(e *expr.Element) any {
	if v, ok := b.bound[e]; ok {
		return v
	}
	i, ok := b.inst.layout.index[e]
	if !ok {
		return nil
	}
	d := b.inst.layout.decls[i]

	var v any
	if s := b.inst.slots[i]; s != nil {
		v = d.ref(s)
	} else {
		v = d.rebind(b)
	}
	b.bound[e] = v
	return v
}

func (inst *Instance) Layout() *Layout { return inst.layout }

func (inst *Instance) Schema() *Schema { return inst.layout.schema }

// Read runs the forward pass: every entry with a read step evaluates its
// expression against ctx and stores the result.
func (inst *Instance) Read(ctx expr.Context) error {
	for i, ent := range inst.layout.entries {
		st := inst.steps[i]
		if st.read == nil {
			continue
		}
		if err := st.read(ctx); err != nil {
			return errors.Wrapf(err, "%s.%s: read", inst.layout.schema.name, ent.Element.Name())
		}
	}
	return nil
}

// Write runs the reverse pass: entries are visited in the mirror of the read
// order and every entry with a write step encodes its stored value.
//
// Fields that were never read or assigned are written as their zero value.
// Use CheckPopulated first to rule that out.
func (inst *Instance) Write(ctx expr.Context) error {
	for i := len(inst.layout.entries) - 1; i >= 0; i-- {
		st := inst.steps[i]
		if st.write == nil {
			continue
		}
		if err := st.write(ctx); err != nil {
			return errors.Wrapf(err, "%s.%s: write", inst.layout.schema.name, inst.layout.entries[i].Element.Name())
		}
	}
	return nil
}

// Populated reports whether the field has been read or assigned. Hidden and
// foreign elements are never populated.
func (inst *Instance) Populated(e *expr.Element) bool {
	s := inst.slotFor(e)
	return s != nil && s.Populated()
}

// CheckPopulated returns an ErrUnpopulated error naming every writable field
// that was neither read nor assigned.
func (inst *Instance) CheckPopulated() error {
	var missing []string
	for _, ent := range inst.layout.entries {
		if ent.HasWrite() && !inst.slots[ent.Element.Index()].Populated() {
			missing = append(missing, ent.Element.Name())
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrUnpopulated, "%s: %s", inst.layout.schema.name, strings.Join(missing, ", "))
	}
	return nil
}

func (inst *Instance) slotFor(e *expr.Element) slot {
	if e == nil {
		return nil
	}
	i, ok := inst.layout.index[e]
	if !ok || inst.layout.decls[i].elem != e {
		return nil
	}
	return inst.slots[i]
}

func typedSlot[T any](inst *Instance, f *Field[T]) *expr.Slot[T] {
	s := inst.slotFor(f.Element())
	if s == nil {
		panic(fmt.Sprintf("schema: %s.%s has no storage in an instance of %s",
			f.schema.name, f.Name(), inst.layout.schema.name))
	}
	return s.(*expr.Slot[T])
}

// Get returns the stored value of f. It panics if f is hidden or belongs to
// another schema.
func Get[T any](inst *Instance, f *Field[T]) T {
	return typedSlot(inst, f).Get()
}

// Set stores v as the value of f. It panics if f is hidden or belongs to
// another schema.
func Set[T any](inst *Instance, f *Field[T], v T) {
	typedSlot(inst, f).Set(v)
}

// NamedValue is one field's stored value.
type NamedValue struct {
	Name  string
	Value any
}

// Values returns every materialized field's value in declaration order.
// Nested structures appear as *Instance.
func (inst *Instance) Values() []NamedValue {
	var out []NamedValue
	for i, d := range inst.layout.decls {
		if s := inst.slots[i]; s != nil {
			out = append(out, NamedValue{Name: d.elem.Name(), Value: s.Any()})
		}
	}
	return out
}

// Value returns the stored value of the named field.
func (inst *Instance) Value(name string) (any, bool) {
	for i, d := range inst.layout.decls {
		if d.elem.Name() == name && inst.slots[i] != nil {
			return inst.slots[i].Any(), true
		}
	}
	return nil, false
}

// SetValue stores v in the named field. v must have the field's exact type.
func (inst *Instance) SetValue(name string, v any) error {
	for i, d := range inst.layout.decls {
		if d.elem.Name() == name && inst.slots[i] != nil {
			return d.set(inst.slots[i], v)
		}
	}
	return errors.Errorf("%s has no stored field %s", inst.layout.schema.name, name)
}
