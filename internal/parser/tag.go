package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alexhholmes/binlayout/internal/analyzer"
)

// Term is one operand of an offset expression: a literal or a field name.
type Term struct {
	Neg   bool
	Value int64
	Field string // empty for literals
}

func (t Term) String() string {
	s := t.Field
	if s == "" {
		s = strconv.FormatInt(t.Value, 10)
	}
	if t.Neg {
		return "-" + s
	}
	return s
}

// FieldLayout is a parsed layout tag.
type FieldLayout struct {
	Type    string // Layout type: u8..f64, zstring, string or a structure name
	Endian  string // "little", "big", or "" for the structure default
	At      []Term // Offset terms, summed; nil reads at the cursor
	Literal string // Literal value; the field reads nothing from the stream
	Access  string // "rw", "ro", "wo", "none", or "" for the default
}

// IsLiteral reports whether the field is a constant.
func (f *FieldLayout) IsLiteral() bool {
	return f.Literal != ""
}

// Refs returns the field names the offset refers to.
func (f *FieldLayout) Refs() []string {
	var refs []string
	for _, t := range f.At {
		if t.Field != "" {
			refs = append(refs, t.Field)
		}
	}
	return refs
}

// ParseTag parses layout struct tags
//
// Semantics:
//   - "u32@8"              : little-endian u32 at byte offset 8
//   - "u16be@16"           : big-endian u16 at byte offset 16
//   - "@8"                 : type taken from the Go field type
//   - "u32@Value1"         : u32 at the offset stored in field Value1
//   - "u32@Ref2+Stride-4"  : offsets may add and subtract fields and literals
//   - "u32"                : u32 at the cursor, after the previous field
//   - "i64=4"              : a literal; reads nothing
//   - "zstring@1"          : NUL-terminated string; "string@1" runs to the end
//   - "Header@16"          : nested structure of layout Header
//
// Options follow the type, comma separated:
//   - "endian=big"         : same as the be suffix
//   - "access=ro"          : rw (default), ro, wo, none
//
// Examples:
//
//	"u32@0"                     → Fixed field at offset 0
//	"u16be@Base+2,access=ro"    → Read-only field relative to Base
//	"i64=4,access=none"         → Constant usable in offsets, never stored
func ParseTag(tag string) (*FieldLayout, error) {
	if tag == "" {
		return nil, fmt.Errorf("empty layout tag")
	}

	parts := strings.Split(tag, ",")
	head := strings.TrimSpace(parts[0])
	f := &FieldLayout{}

	switch {
	case strings.Contains(head, "="):
		// Literal: "u32=4"
		idx := strings.IndexByte(head, '=')
		f.Type, f.Literal = head[:idx], head[idx+1:]
		if f.Literal == "" {
			return nil, fmt.Errorf("literal requires a value: %s", head)
		}
		if !isNumber(f.Literal) {
			return nil, fmt.Errorf("invalid literal: %s", f.Literal)
		}
		if f.Type == "" {
			return nil, fmt.Errorf("literal requires a type: %s", head)
		}

	case strings.Contains(head, "@"):
		// Offset: "u32@8", "@Base+4"
		idx := strings.IndexByte(head, '@')
		f.Type = head[:idx]
		at, err := ParseOffset(head[idx+1:])
		if err != nil {
			return nil, err
		}
		f.At = at

	default:
		// Cursor-relative: "u32"
		if head == "" {
			return nil, fmt.Errorf("missing type")
		}
		f.Type = head
	}

	if f.Type != "" && !isIdent(f.Type) {
		return nil, fmt.Errorf("invalid type: %s", f.Type)
	}
	f.Type, f.Endian = splitEndianSuffix(f.Type)
	if s, ok := analyzer.LookupScalar(f.Type); ok {
		f.Type = s.Name
	}

	for _, part := range parts[1:] {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[1] == "" {
			return nil, fmt.Errorf("invalid option: %s", part)
		}
		switch kv[0] {
		case "endian":
			if kv[1] != "little" && kv[1] != "big" {
				return nil, fmt.Errorf("endian must be 'little' or 'big', got: %s", kv[1])
			}
			f.Endian = kv[1]
		case "access":
			switch kv[1] {
			case "rw", "ro", "wo", "none":
				f.Access = kv[1]
			default:
				return nil, fmt.Errorf("access must be rw, ro, wo or none, got: %s", kv[1])
			}
		default:
			return nil, fmt.Errorf("unknown parameter: %s", kv[0])
		}
	}

	if f.IsLiteral() {
		if _, ok := analyzer.LookupScalar(f.Type); !ok {
			return nil, fmt.Errorf("literal must have a numeric type, got: %s", f.Type)
		}
	}

	return f, nil
}

// splitEndianSuffix turns "u32be" into ("u32", "big").
func splitEndianSuffix(typeName string) (string, string) {
	if len(typeName) < 3 {
		return typeName, ""
	}
	base, suffix := typeName[:len(typeName)-2], typeName[len(typeName)-2:]
	if _, ok := analyzer.LookupScalar(base); !ok {
		return typeName, ""
	}
	switch suffix {
	case "le":
		return base, "little"
	case "be":
		return base, "big"
	}
	return typeName, ""
}

// ParseOffset parses "8", "0x10", "Base", "Ref2+Stride-4".
func ParseOffset(s string) ([]Term, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("missing offset")
	}

	var terms []Term
	neg := false
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '+' && s[i] != '-' {
			continue
		}
		tok := strings.TrimSpace(s[start:i])
		if tok == "" {
			// Only a leading sign may have no operand before it.
			if i == 0 && i < len(s) && s[i] == '-' {
				neg = true
				start = i + 1
				continue
			}
			return nil, fmt.Errorf("invalid offset: %s", s)
		}
		term, err := parseTerm(tok)
		if err != nil {
			return nil, err
		}
		term.Neg = neg
		terms = append(terms, term)
		if i < len(s) {
			neg = s[i] == '-'
		}
		start = i + 1
	}
	return terms, nil
}

func parseTerm(tok string) (Term, error) {
	if isIdent(tok) {
		return Term{Field: tok}, nil
	}
	v, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		return Term{}, fmt.Errorf("invalid offset: %s", tok)
	}
	return Term{Value: v}, nil
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}

func isNumber(s string) bool {
	if _, err := strconv.ParseInt(s, 0, 64); err == nil {
		return true
	}
	if _, err := strconv.ParseUint(s, 0, 64); err == nil {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
