package testdata

type PageID uint64

// @layout size=20
type Header struct {
	Value1 uint32 `layout:"@0"`
	Ref1   uint32 `layout:"@8"`
	Ref2   uint32 `layout:"@Value1"`
	Stride int64  `layout:"i64=4,access=none"`
	Ref3   uint32 `layout:"@Ref2+Stride"`
	Short1 uint16 `layout:"@16"`
	Short2 uint16 `layout:"@18"`
}

// @layout endian=big
type Page struct {
	ID     PageID `layout:"@0"`
	Head   Header `layout:"@8"`
	Name   string `layout:"@28"`
	Kind   uint8  `layout:"u8@40,access=ro"`
	Scratch []byte
}

// No annotation - should be skipped
type Ignored struct {
	Field uint32 `layout:"@0"`
}
