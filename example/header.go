package example

import (
	"github.com/alexhholmes/binlayout/expr"
	"github.com/alexhholmes/binlayout/schema"
	"github.com/alexhholmes/binlayout/stream"
)

func u32(at expr.Expression[int64]) *expr.WritablePrimitive[uint32] {
	return expr.ReadWrite[uint32](at, stream.LittleEndian)
}

func u16(at expr.Expression[int64]) *expr.WritablePrimitive[uint16] {
	return expr.ReadWrite[uint16](at, stream.LittleEndian)
}

// Header is a 20 byte record whose fields point at each other: Value1 holds
// the position of Ref2, and Ref3 sits Stride bytes after the position Ref2
// holds. Reading follows the pointers; writing restores them in reverse.
var (
	HeaderSchema = schema.New("Header")

	HeaderValue1 = schema.Var[uint32](HeaderSchema, "Value1", u32(expr.Lit[int64](0)))
	HeaderRef1   = schema.Var[uint32](HeaderSchema, "Ref1", u32(expr.Lit[int64](8)))
	HeaderRef2   = schema.Var[uint32](HeaderSchema, "Ref2", u32(expr.Offset[uint32](HeaderValue1)))
	HeaderStride = schema.Param[int64](HeaderSchema, "Stride", expr.Lit[int64](4))
	HeaderRef3   = schema.Var[uint32](HeaderSchema, "Ref3", u32(expr.Add(expr.Offset[uint32](HeaderRef2), HeaderStride)))
	HeaderShort1 = schema.Var[uint16](HeaderSchema, "Short1", u16(expr.Lit[int64](16)))
	HeaderShort2 = schema.Var[uint16](HeaderSchema, "Short2", u16(expr.Lit[int64](18)))
)

// Greeting is text after a one byte prefix the schema never touches.
var (
	GreetingSchema = schema.New("Greeting")
	GreetingText   = schema.Var[string](GreetingSchema, "Text", expr.TailString(expr.Lit[int64](1)))
)

// Tagged has a read-only tag: it is decoded but never written back.
var (
	TaggedSchema  = schema.New("Tagged")
	TaggedTag     = schema.View[uint8](TaggedSchema, "Tag", expr.Read[uint8](expr.Lit[int64](0), stream.LittleEndian))
	TaggedPayload = schema.Var[uint16](TaggedSchema, "Payload", expr.ReadWrite[uint16](expr.Lit[int64](1), stream.BigEndian))
)
