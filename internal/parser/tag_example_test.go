package parser

import (
	"fmt"
	"strings"
)

// Example demonstrating tag parsing for a layout with relative offsets
func ExampleParseTag() {
	// // @layout size=20
	// type Header struct {
	//   Value1 uint32 `layout:"@0"`
	//   Ref1   uint32 `layout:"@8"`
	//   Ref2   uint32 `layout:"@Value1"`
	//   Stride int64  `layout:"i64=4,access=none"`
	//   Ref3   uint32 `layout:"@Ref2+Stride"`
	//   Name   string `layout:"zstring"`
	// }

	tags := []string{
		"u32@0",
		"u32@8",
		"u32@Value1",
		"i64=4,access=none",
		"u32@Ref2+Stride",
		"zstring",
	}

	for i, tag := range tags {
		layout, err := ParseTag(tag)
		if err != nil {
			fmt.Printf("Field%d: ERROR: %v\n", i+1, err)
			continue
		}

		fmt.Printf("Field%d (%s): %s ", i+1, tag, layout.Type)
		switch {
		case layout.IsLiteral():
			fmt.Printf("constant %s", layout.Literal)
		case layout.At == nil:
			fmt.Printf("at cursor")
		default:
			terms := make([]string, len(layout.At))
			for j, term := range layout.At {
				terms[j] = term.String()
			}
			fmt.Printf("at %s", strings.Join(terms, " + "))
		}
		if layout.Access != "" {
			fmt.Printf(", access=%s", layout.Access)
		}
		fmt.Println()
	}

	// Output:
	// Field1 (u32@0): u32 at 0
	// Field2 (u32@8): u32 at 8
	// Field3 (u32@Value1): u32 at Value1
	// Field4 (i64=4,access=none): i64 constant 4, access=none
	// Field5 (u32@Ref2+Stride): u32 at Ref2 + Stride
	// Field6 (zstring): zstring at cursor
}
