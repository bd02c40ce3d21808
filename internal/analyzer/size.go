package analyzer

import (
	"fmt"
	"strings"
)

// Scalar describes one fixed-width primitive of the layout vocabulary.
type Scalar struct {
	Name   string // Canonical layout name: u8, i16, f32, ...
	GoType string
	Size   int
	Signed bool
	Float  bool
}

var scalars = []Scalar{
	{Name: "u8", GoType: "uint8", Size: 1},
	{Name: "i8", GoType: "int8", Size: 1, Signed: true},
	{Name: "u16", GoType: "uint16", Size: 2},
	{Name: "i16", GoType: "int16", Size: 2, Signed: true},
	{Name: "u32", GoType: "uint32", Size: 4},
	{Name: "i32", GoType: "int32", Size: 4, Signed: true},
	{Name: "u64", GoType: "uint64", Size: 8},
	{Name: "i64", GoType: "int64", Size: 8, Signed: true},
	{Name: "f32", GoType: "float32", Size: 4, Signed: true, Float: true},
	{Name: "f64", GoType: "float64", Size: 8, Signed: true, Float: true},
}

// Variable-length types
const (
	ZString    = "zstring" // NUL-terminated
	TailString = "string"  // runs to end of stream
)

var scalarByName = func() map[string]Scalar {
	m := make(map[string]Scalar)
	for _, s := range scalars {
		m[s.Name] = s
		m[s.GoType] = s
	}
	m["byte"] = m["u8"]
	return m
}()

// LookupScalar resolves a layout or Go scalar name.
func LookupScalar(name string) (Scalar, bool) {
	s, ok := scalarByName[name]
	return s, ok
}

// SizeOf returns the size in bytes of a layout type
// Returns -1 for variable-length types (strings)
// Returns error for unsupported types
func SizeOf(typeName string) (int, error) {
	if s, ok := LookupScalar(typeName); ok {
		return s.Size, nil
	}
	switch typeName {
	case ZString, TailString:
		return -1, nil
	}
	if strings.HasPrefix(typeName, "*") {
		return 0, fmt.Errorf("pointer types not supported: %s", typeName)
	}
	return 0, fmt.Errorf("unknown type: %s (use type registry for structures)", typeName)
}

// TypeRegistry tracks structure names and type aliases for layout analysis
type TypeRegistry struct {
	types   map[string]int    // structure name → size in bytes, -1 if variable
	aliases map[string]string // alias → underlying type
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types:   make(map[string]int),
		aliases: make(map[string]string),
	}
}

// Register adds a structure type with its size
func (r *TypeRegistry) Register(name string, size int) {
	r.types[name] = size
}

// RegisterAlias adds a type alias mapping (e.g., type PageID uint64)
func (r *TypeRegistry) RegisterAlias(alias, underlying string) {
	r.aliases[alias] = underlying
}

// Lookup returns the size of a registered type
func (r *TypeRegistry) Lookup(name string) (int, bool) {
	size, ok := r.types[name]
	return size, ok
}

// ResolveType resolves type aliases to their underlying types
// Returns the original type if not an alias
func (r *TypeRegistry) ResolveType(typeName string) string {
	seen := make(map[string]bool)
	for {
		underlying, ok := r.aliases[typeName]
		if !ok || seen[typeName] {
			return typeName
		}
		seen[typeName] = true
		typeName = underlying
	}
}

// SizeOf calculates size using registry for structure types
func (r *TypeRegistry) SizeOf(typeName string) (int, error) {
	resolved := r.ResolveType(typeName)

	// Try built-in types
	size, err := SizeOf(resolved)
	if err == nil {
		return size, nil
	}

	// Check if it's a registered structure
	if size, ok := r.Lookup(resolved); ok {
		return size, nil
	}

	return 0, fmt.Errorf("unknown type: %s (not registered)", typeName)
}
