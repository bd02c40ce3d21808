package expr

// Offset converts an integer expression to the int64 offsets primitives
// take. It is how one field's value becomes another field's position.
func Offset[T Integer](e Expression[T]) Expression[int64] {
	if lit, ok := any(e).(*Value[int64]); ok {
		return lit
	}
	return &convert[T]{e: e}
}

type convert[T Integer] struct {
	e Expression[T]
}

func (c *convert[T]) Evaluate(ctx Context) (int64, error) {
	v, err := c.e.Evaluate(ctx)
	return int64(v), err
}

func (c *convert[T]) Rebind(b Binder) Expression[int64] {
	return &convert[T]{e: c.e.Rebind(b)}
}

func (c *convert[T]) Visit(fn func(*Element)) {
	c.e.Visit(fn)
}

// Add returns a + b.
func Add(a, b Expression[int64]) Expression[int64] {
	return &arith{a: a, b: b, sign: 1}
}

// Sub returns a - b.
func Sub(a, b Expression[int64]) Expression[int64] {
	return &arith{a: a, b: b, sign: -1}
}

type arith struct {
	a, b Expression[int64]
	sign int64
}

func (x *arith) Evaluate(ctx Context) (int64, error) {
	a, err := x.a.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	b, err := x.b.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	return a + x.sign*b, nil
}

func (x *arith) Rebind(b Binder) Expression[int64] {
	return &arith{a: x.a.Rebind(b), b: x.b.Rebind(b), sign: x.sign}
}

func (x *arith) Visit(fn func(*Element)) {
	visitAll(fn, x.a, x.b)
}
