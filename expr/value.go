package expr

// Value is a literal.
type Value[T any] struct {
	v T
}

// Lit returns a literal expression. There is no implicit conversion from Go
// constants to expressions; literals are always built with Lit.
func Lit[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

func (l *Value[T]) Get() T { return l.v }

func (l *Value[T]) Evaluate(Context) (T, error) { return l.v, nil }

func (l *Value[T]) Rebind(Binder) Expression[T] { return l }

func (l *Value[T]) Visit(func(*Element)) {}

// Reference aliases another expression's result, not its bytes. It is
// never writable.
type Reference[T any] struct {
	target Expression[T]
}

func Ref[T any](target Expression[T]) *Reference[T] {
	return &Reference[T]{target: target}
}

func (r *Reference[T]) Target() Expression[T] { return r.target }

func (r *Reference[T]) Evaluate(ctx Context) (T, error) {
	return r.target.Evaluate(ctx)
}

func (r *Reference[T]) Rebind(b Binder) Expression[T] {
	return &Reference[T]{target: r.target.Rebind(b)}
}

func (r *Reference[T]) Visit(fn func(*Element)) {
	r.target.Visit(fn)
}

// Slot is per-instance storage for one field. It evaluates to the stored
// value and tracks whether anything has been stored.
type Slot[T any] struct {
	v   T
	set bool
}

func (s *Slot[T]) Get() T { return s.v }

func (s *Slot[T]) Set(v T) {
	s.v = v
	s.set = true
}

// Populated reports whether Set has been called.
func (s *Slot[T]) Populated() bool { return s.set }

// Any returns the stored value as an interface.
func (s *Slot[T]) Any() any { return s.v }

func (s *Slot[T]) Evaluate(Context) (T, error) { return s.v, nil }

func (s *Slot[T]) Rebind(Binder) Expression[T] { return s }

func (s *Slot[T]) Visit(func(*Element)) {}
