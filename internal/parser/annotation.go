package parser

import (
	"fmt"
	"strconv"
	"strings"
)

const annotationMarker = "@layout"

// TypeAnnotation is the parsed @layout line above a struct.
type TypeAnnotation struct {
	Size   int    // encoded size in bytes, 0 when not declared
	Endian string // "little" or "big"; applies to fields without their own
}

// ParseAnnotation parses the first @layout annotation in comment:
//
//	// @layout
//	// @layout size=20
//	// @layout size=4096 endian=big
//
// Without a size the structure can still be read and written, but no
// MarshalLayout/UnmarshalLayout pair is generated for it.
func ParseAnnotation(comment string) (*TypeAnnotation, error) {
	i := strings.Index(comment, annotationMarker)
	if i < 0 {
		return nil, fmt.Errorf("no @layout annotation found")
	}

	anno := &TypeAnnotation{Endian: "little"}
	for _, param := range strings.Fields(comment[i+len(annotationMarker):]) {
		key, value, ok := strings.Cut(param, "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("malformed parameter: %s", param)
		}
		if err := anno.set(key, value); err != nil {
			return nil, err
		}
	}
	return anno, nil
}

func (a *TypeAnnotation) set(key, value string) error {
	switch key {
	case "size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid size: %s", value)
		}
		if n <= 0 {
			return fmt.Errorf("size must be positive, got: %d", n)
		}
		a.Size = n
	case "endian":
		if value != "little" && value != "big" {
			return fmt.Errorf("endian must be 'little' or 'big', got: %s", value)
		}
		a.Endian = value
	default:
		return fmt.Errorf("unknown parameter: %s", key)
	}
	return nil
}

// FindAnnotation returns the first line that starts with @layout, parsed.
// found is true for such a line even when it does not parse.
func FindAnnotation(lines []string) (anno *TypeAnnotation, found bool, err error) {
	for _, line := range lines {
		if strings.HasPrefix(line, annotationMarker) {
			anno, err = ParseAnnotation(line)
			return anno, true, err
		}
	}
	return nil, false, nil
}

// CleanComment strips the // or /* */ markers and surrounding space from a
// single comment.
func CleanComment(line string) string {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "//"); ok {
		return strings.TrimSpace(rest)
	}
	if len(line) >= 4 && strings.HasPrefix(line, "/*") && strings.HasSuffix(line, "*/") {
		return strings.TrimSpace(line[2 : len(line)-2])
	}
	return line
}
