package schema

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/binlayout/expr"
	"github.com/alexhholmes/binlayout/stream"
)

func at(off int64) expr.Expression[int64] { return expr.Lit[int64](off) }

func u8(off int64) *expr.WritablePrimitive[uint8] {
	return expr.ReadWrite[uint8](at(off), stream.LittleEndian)
}

func u32(off int64) *expr.WritablePrimitive[uint32] {
	return expr.ReadWrite[uint32](at(off), stream.LittleEndian)
}

func names(elems []*expr.Element) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = e.Name()
	}
	return out
}

// pair is a u32 at 0 holding the offset of a big-endian u16.
type pair struct {
	s    *Schema
	base *Field[uint32]
	val  *Field[uint16]
}

func newPair() pair {
	s := New("Pair")
	base := Var[uint32](s, "Base", u32(0))
	val := Var[uint16](s, "Val", expr.ReadWrite[uint16](expr.Offset[uint32](base), stream.BigEndian))
	return pair{s, base, val}
}

func TestRoundTrip(t *testing.T) {
	p := newPair()
	data := []byte{0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAB, 0xCD}

	inst, err := p.s.Read(stream.NewContext(data))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), Get(inst, p.base))
	assert.Equal(t, uint16(0xABCD), Get(inst, p.val))

	out := stream.NewZeroBuffer(len(data))
	require.NoError(t, inst.Write(stream.NewCursor(out)))
	assert.Equal(t, data, out.Bytes())
}

func TestWriteOrderMirrorsReadOrder(t *testing.T) {
	s := New("Four")
	a := Var[uint32](s, "A", u32(0))
	b := Var[uint32](s, "B", expr.ReadWrite[uint32](expr.Offset[uint32](a), stream.LittleEndian))
	Var[uint32](s, "C", u32(8))
	Var[uint8](s, "D", expr.ReadWrite[uint8](expr.Add(expr.Offset[uint32](b), at(1)), stream.LittleEndian))

	l, err := s.Layout()
	require.NoError(t, err)

	read := names(l.ReadOrder())
	write := names(l.WriteOrder())
	assert.Equal(t, []string{"A", "B", "C", "D"}, read)

	reversed := make([]string, len(read))
	for i, n := range read {
		reversed[len(read)-1-i] = n
	}
	assert.Equal(t, reversed, write)
}

func TestForwardReferenceIsReordered(t *testing.T) {
	s := New("Fwd")
	View[uint8](s, "Ref", expr.Read[uint8](expr.Offset[uint8](Forward[uint8](s, "At")), stream.LittleEndian))
	Var[uint8](s, "At", u8(0))

	l, err := s.Layout()
	require.NoError(t, err)
	assert.Equal(t, []string{"At", "Ref"}, names(l.ReadOrder()))
	assert.Equal(t, []string{"At"}, names(l.WriteOrder()))

	inst, err := s.Read(stream.NewContext([]byte{2, 0, 0x5A}))
	require.NoError(t, err)
	v, ok := inst.Value("Ref")
	require.True(t, ok)
	assert.Equal(t, uint8(0x5A), v)
}

func TestLayoutBuiltOnce(t *testing.T) {
	p := newPair()

	const n = 16
	layouts := make([]*Layout, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := p.s.Layout()
			assert.NoError(t, err)
			layouts[i] = l
		}(i)
	}
	wg.Wait()

	for _, l := range layouts {
		assert.Same(t, layouts[0], l)
	}

	i1, err := p.s.New()
	require.NoError(t, err)
	i2, err := p.s.New()
	require.NoError(t, err)
	assert.Same(t, i1.Layout(), i2.Layout())
	assert.Same(t, &i1.Layout().Entries()[0], &i2.Layout().Entries()[0])
}

func TestInstancesDoNotShareStorage(t *testing.T) {
	p := newPair()

	i1, err := p.s.Read(stream.NewContext([]byte{4, 0, 0, 0, 0x00, 0x01}))
	require.NoError(t, err)
	i2, err := p.s.Read(stream.NewContext([]byte{2, 0, 0x00, 0x02, 0, 0}))
	require.NoError(t, err)

	assert.Equal(t, uint32(4), Get(i1, p.base))
	assert.Equal(t, uint32(2), Get(i2, p.base))
	assert.Equal(t, uint16(1), Get(i1, p.val))
	assert.Equal(t, uint16(2), Get(i2, p.val))

	// Moving one instance's value does not move the other's.
	Set(i1, p.base, 0)
	out := stream.NewZeroBuffer(6)
	require.NoError(t, i2.Write(stream.NewCursor(out)))
	assert.Equal(t, []byte{2, 0, 0x00, 0x02, 0, 0}, out.Bytes())

	// i1 writes its u16 at its own new offset; Base is written last.
	out = stream.NewZeroBuffer(6)
	require.NoError(t, i1.Write(stream.NewCursor(out)))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, out.Bytes())
}

func TestReadOnlyFieldSkippedByWrite(t *testing.T) {
	s := New("RO")
	Var[uint8](s, "Kind", u8(0))
	checksum := View[uint8](s, "Checksum", u8(1))

	l, err := s.Layout()
	require.NoError(t, err)
	assert.Equal(t, []string{"Kind", "Checksum"}, names(l.ReadOrder()))
	assert.Equal(t, []string{"Kind"}, names(l.WriteOrder()))

	inst, err := s.Read(stream.NewContext([]byte{7, 9}))
	require.NoError(t, err)
	assert.Equal(t, uint8(9), Get(inst, checksum))

	out := stream.NewZeroBuffer(2)
	require.NoError(t, inst.Write(stream.NewCursor(out)))
	assert.Equal(t, []byte{7, 0}, out.Bytes())
}

func TestWriteOnlyField(t *testing.T) {
	s := New("WO")
	pad := Declare[uint8](s, "Pad", u8(1), Writable)

	inst, err := s.Read(stream.NewContext([]byte{1, 2}))
	require.NoError(t, err)
	assert.False(t, inst.Populated(pad.Element()))

	Set(inst, pad, 0xEE)
	out := stream.NewZeroBuffer(2)
	require.NoError(t, inst.Write(stream.NewCursor(out)))
	assert.Equal(t, []byte{0, 0xEE}, out.Bytes())
}

func TestBuildErrorIsCached(t *testing.T) {
	s := New("Bad")
	// A literal can be read but never assigned.
	Declare[uint32](s, "Magic", expr.Lit[uint32](4), ReadWrite)

	_, err1 := s.New()
	require.Error(t, err1)
	assert.True(t, errors.Is(err1, ErrBuild))

	var be *BuildError
	require.True(t, errors.As(err1, &be))
	assert.Equal(t, "Bad", be.Schema)
	require.Len(t, be.Problems, 1)
	assert.Contains(t, be.Problems[0], "Magic")

	_, err2 := s.Read(stream.NewContext(nil))
	assert.Equal(t, err1, err2)

	l, err3 := s.Layout()
	assert.Nil(t, l)
	assert.Equal(t, err1, err3)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		declare func(s *Schema)
		want    string
	}{
		{
			name: "cycle",
			declare: func(s *Schema) {
				a := View[uint8](s, "A", expr.Read[uint8](expr.Offset[uint8](Forward[uint8](s, "B")), stream.LittleEndian))
				View[uint8](s, "B", expr.Read[uint8](expr.Offset[uint8](a), stream.LittleEndian))
			},
			want: "dependency cycle",
		},
		{
			name: "missing forward",
			declare: func(s *Schema) {
				View[uint8](s, "A", expr.Read[uint8](expr.Offset[uint8](Forward[uint8](s, "Nope")), stream.LittleEndian))
			},
			want: "Nope",
		},
		{
			name: "forward of another type",
			declare: func(s *Schema) {
				View[uint8](s, "A", expr.Read[uint8](expr.Offset[uint16](Forward[uint16](s, "B")), stream.LittleEndian))
				Var[uint8](s, "B", u8(0))
			},
			want: "B (uint16)",
		},
		{
			name: "foreign",
			declare: func(s *Schema) {
				other := New("Other")
				o := Var[uint8](other, "O", u8(0))
				View[uint8](s, "A", expr.Read[uint8](expr.Offset[uint8](o), stream.LittleEndian))
			},
			want: "references O, which is not declared in Broken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("Broken")
			tt.declare(s)
			_, err := s.New()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBuild))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDeclareAfterBuildPanics(t *testing.T) {
	p := newPair()
	_, err := p.s.Layout()
	require.NoError(t, err)

	assert.Panics(t, func() {
		Var[uint8](p.s, "Late", u8(0))
	})
}

func TestHiddenParam(t *testing.T) {
	s := New("Params")
	base := Var[uint8](s, "Base", u8(0))
	stride := Param[int64](s, "Stride", expr.Lit[int64](2))
	val := Var[uint8](s, "Val", expr.ReadWrite[uint8](expr.Add(expr.Offset[uint8](base), stride), stream.LittleEndian))

	l, err := s.Layout()
	require.NoError(t, err)
	assert.Equal(t, []string{"Base", "Val"}, names(l.ReadOrder()))

	data := []byte{1, 0, 0, 0x42}
	inst, err := s.Read(stream.NewContext(data))
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), Get(inst, val))

	values := inst.Values()
	require.Len(t, values, 2)
	assert.Equal(t, "Base", values[0].Name)
	assert.Equal(t, "Val", values[1].Name)

	assert.Panics(t, func() { Get(inst, stride) })
	assert.False(t, inst.Populated(stride.Element()))

	out := stream.NewZeroBuffer(len(data))
	require.NoError(t, inst.Write(stream.NewCursor(out)))
	assert.Equal(t, data, out.Bytes())
}

func TestNestedRoundTrip(t *testing.T) {
	point := New("Point")
	x := Var[uint16](point, "X", expr.ReadWrite[uint16](at(0), stream.LittleEndian))
	Var[uint16](point, "Y", expr.ReadWrite[uint16](at(2), stream.LittleEndian))

	outer := New("Outer")
	Var[uint8](outer, "Count", u8(0))
	off := Var[uint8](outer, "At", u8(1))
	p := Var[*Instance](outer, "P", Nested(point, expr.Offset[uint8](off)))

	data := []byte{0x01, 0x04, 0x00, 0x00, 0x0A, 0x00, 0x0B, 0x00}
	inst, err := outer.Read(stream.NewContext(data))
	require.NoError(t, err)

	inner := Get(inst, p)
	require.NotNil(t, inner)
	assert.Same(t, point, inner.Schema())
	assert.Equal(t, uint16(10), Get(inner, x))
	y, _ := inner.Value("Y")
	assert.Equal(t, uint16(11), y)

	out := stream.NewZeroBuffer(len(data))
	require.NoError(t, inst.Write(stream.NewCursor(out)))
	assert.Equal(t, data, out.Bytes())
}

func TestNestedAssignRejectsOtherSchema(t *testing.T) {
	a := New("A")
	Var[uint8](a, "V", u8(0))
	b := New("B")
	Var[uint8](b, "V", u8(0))

	outer := New("Outer")
	p := Var[*Instance](outer, "P", Nested(a, at(0)))

	inst, err := outer.New()
	require.NoError(t, err)
	wrong, err := b.New()
	require.NoError(t, err)

	Set(inst, p, wrong)
	err = inst.Write(stream.NewCursor(stream.NewZeroBuffer(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance of B assigned to a A field")

	Set(inst, p, nil)
	assert.Error(t, inst.Write(stream.NewCursor(stream.NewZeroBuffer(1))))
}

func TestSchemaContainingItselfFailsBuild(t *testing.T) {
	s := New("Chain")
	Var[uint8](s, "Tag", u8(0))
	Var[*Instance](s, "Next", Nested(s, at(0)))

	_, err := s.Layout()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuild))
	assert.Contains(t, err.Error(), "layout Chain contains itself (Chain -> Chain)")

	_, err2 := s.Read(stream.NewContext([]byte{1, 2, 3, 4}))
	assert.Same(t, err, err2)
}

func TestSchemasContainingEachOtherFailBuild(t *testing.T) {
	dir := New("Dir")
	file := New("File")
	Var[uint8](dir, "Kind", u8(0))
	Var[*Instance](dir, "First", Nested(file, at(1)))
	Var[uint8](file, "Kind", u8(0))
	Var[*Instance](file, "Parent", Nested(dir, at(1)))

	_, err := dir.Layout()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout Dir contains itself (Dir -> File -> Dir)")

	_, err = file.Layout()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout File contains itself (File -> Dir -> File)")
}

func TestNestedBuildErrorFailsOuter(t *testing.T) {
	inner := New("Inner")
	Declare[uint8](inner, "B", expr.Read[uint8](at(0), stream.LittleEndian), ReadWrite)

	outer := New("Outer")
	Var[uint8](outer, "A", u8(0))
	Var[*Instance](outer, "In", Nested(inner, at(1)))

	_, err := outer.Layout()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuild))

	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "Outer", be.Schema)
	require.Len(t, be.Problems, 1)
	assert.Contains(t, be.Problems[0], "In: schema Inner: layout build failed")
	assert.Contains(t, be.Problems[0], "B: declared writable but its expression cannot be assigned")
}

func TestNestedReadFailureKeepsPartialStructure(t *testing.T) {
	point := New("Point")
	x := Var[uint16](point, "X", expr.ReadWrite[uint16](at(0), stream.LittleEndian))
	y := Var[uint16](point, "Y", expr.ReadWrite[uint16](at(2), stream.LittleEndian))

	outer := New("Outer")
	tag := Var[uint8](outer, "Tag", u8(0))
	p := Var[*Instance](outer, "P", Nested(point, at(1)))

	inst, err := outer.Read(stream.NewContext([]byte{9, 0x0A, 0x00, 0x0B}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "Outer.P: read")
	assert.Equal(t, uint8(9), Get(inst, tag))

	partial := Get(inst, p)
	require.NotNil(t, partial)
	assert.Equal(t, uint16(10), Get(partial, x))
	assert.True(t, partial.Populated(x.Element()))
	assert.False(t, partial.Populated(y.Element()))
}

func TestReadFailureKeepsEarlierFields(t *testing.T) {
	s := New("Short")
	a := Var[uint8](s, "A", u8(0))
	b := Var[uint32](s, "B", u32(1))

	inst, err := s.Read(stream.NewContext([]byte{7, 0, 1}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "Short.B: read")

	require.NotNil(t, inst)
	assert.Equal(t, uint8(7), Get(inst, a))
	assert.True(t, inst.Populated(a.Element()))
	assert.False(t, inst.Populated(b.Element()))
}

func TestCheckPopulated(t *testing.T) {
	p := newPair()
	inst, err := p.s.New()
	require.NoError(t, err)

	err = inst.CheckPopulated()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnpopulated))
	assert.Contains(t, err.Error(), "Base, Val")

	Set(inst, p.base, 4)
	require.NoError(t, inst.SetValue("Val", uint16(0x0102)))
	require.NoError(t, inst.CheckPopulated())

	out := stream.NewZeroBuffer(6)
	require.NoError(t, inst.Write(stream.NewCursor(out)))
	assert.Equal(t, []byte{4, 0, 0, 0, 0x01, 0x02}, out.Bytes())
}

func TestSetValueTypeMismatch(t *testing.T) {
	p := newPair()
	inst, err := p.s.New()
	require.NoError(t, err)

	assert.Error(t, inst.SetValue("Val", uint32(1)))
	assert.Error(t, inst.SetValue("Missing", uint16(1)))

	_, ok := inst.Value("Missing")
	assert.False(t, ok)
}

func TestTailStringRoundTrip(t *testing.T) {
	s := New("Text")
	text := Var[string](s, "Text", expr.TailString(at(1)))

	data := []byte("\x00Hello there")
	inst, err := s.Read(stream.NewContext(data))
	require.NoError(t, err)
	assert.Equal(t, "Hello there", Get(inst, text))

	out := stream.NewZeroBuffer(len(data))
	require.NoError(t, inst.Write(stream.NewCursor(out)))
	assert.Equal(t, data, out.Bytes())
}

func TestFieldIsNotEvaluableWithoutInstance(t *testing.T) {
	p := newPair()
	_, err := p.base.Evaluate(stream.NewContext([]byte{1, 2, 3, 4}))
	assert.True(t, errors.Is(err, expr.ErrUnbound))
}

func TestCollisionWarningIsLogged(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := New("Overlap", WithLogger(log))
	Var[uint32](s, "Wide", u32(0))
	Var[uint8](s, "Narrow", u8(2))

	l, err := s.Layout()
	require.NoError(t, err)
	require.Len(t, l.Warnings(), 1)
	assert.Contains(t, logs.String(), "collision: Wide [0, 4) overlaps Narrow [2, 3)")
	assert.Contains(t, logs.String(), "layout built")
}

func TestParseAccess(t *testing.T) {
	for _, a := range []Access{Hidden, Readable, Writable, ReadWrite} {
		got, err := ParseAccess(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseAccess("sometimes")
	assert.Error(t, err)
}
