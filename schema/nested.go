package schema

import (
	"github.com/pkg/errors"

	"github.com/alexhholmes/binlayout/expr"
)

// Struct is a field whose value is an instance of another schema. The inner
// schema sees a context whose offset 0 is where the field starts. A schema
// may not contain itself, directly or through other structures; its layout
// build fails if it does.
type Struct struct {
	inner *Schema
	at    expr.Expression[int64]
}

var _ expr.Writable[*Instance] = (*Struct)(nil)

// Nested declares a structure of schema inner at offset at. A nil offset
// starts the structure at the current cursor.
func Nested(inner *Schema, at expr.Expression[int64]) *Struct {
	return &Struct{inner: inner, at: at}
}

func (n *Struct) Inner() *Schema { return n.inner }

func (n *Struct) At() expr.Expression[int64] { return n.at }

func (n *Struct) base(ctx expr.Context) (int64, error) {
	if n.at == nil {
		return ctx.Position()
	}
	off, err := n.at.Evaluate(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "offset")
	}
	if off < 0 {
		return 0, errors.Wrapf(expr.ErrNegativeOffset, "%d", off)
	}
	return off, nil
}

func (n *Struct) Evaluate(ctx expr.Context) (*Instance, error) {
	base, err := n.base(ctx)
	if err != nil {
		return nil, err
	}
	inst, err := n.inner.New()
	if err != nil {
		return nil, err
	}
	// On failure the partly read instance is returned with the error.
	return inst, inst.Read(ctx.WithBase(base))
}

func (n *Struct) Assign(ctx expr.Context, v *Instance) error {
	if v == nil {
		return errors.Errorf("nil %s instance", n.inner.name)
	}
	if v.layout.schema != n.inner {
		return errors.Errorf("instance of %s assigned to a %s field", v.layout.schema.name, n.inner.name)
	}
	base, err := n.base(ctx)
	if err != nil {
		return err
	}
	return v.Write(ctx.WithBase(base))
}

func (n *Struct) Rebind(b expr.Binder) expr.Expression[*Instance] {
	s := &Struct{inner: n.inner}
	if n.at != nil {
		s.at = n.at.Rebind(b)
	}
	return s
}

func (n *Struct) Visit(fn func(*expr.Element)) {
	if n.at != nil {
		n.at.Visit(fn)
	}
}
