package example

//go:generate go run ../cmd/layout --gen example --out leaf_layout.go leaf.go

// PageID numbers pages in a file.
type PageID uint32

// @layout
type LeafHeader struct {
	NumKeys  uint16 `layout:"@0"`
	Flags    uint16 `layout:"@2"`
	NextPage PageID `layout:"@4"`
	PrevPage PageID `layout:"@8"`
	Reserved uint32 `layout:"u32@12,access=wo"`
}

// @layout size=4096
type LeafNode struct {
	Header   LeafHeader `layout:"@0"`
	KeysAt   uint16     `layout:"@16"`
	FirstKey uint64     `layout:"@KeysAt"`
	LastKey  uint64     `layout:"@KeysAt+8"`
	Label    string     `layout:"@32"`
	Footer   uint64     `layout:"@4088"`
}
