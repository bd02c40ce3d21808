package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/alexhholmes/binlayout/internal/analyzer"
)

// TypeLayout represents a parsed structure declaration
type TypeLayout struct {
	Name   string
	Anno   *TypeAnnotation
	Fields []Field
	Source string // "go" when parsed from Go source, "yaml" otherwise
}

// Field represents a struct field with layout tag
type Field struct {
	Name   string
	GoType string // Declared Go type; empty for YAML input
	Layout *FieldLayout
}

// Lookup returns the field with the given name.
func (t *TypeLayout) Lookup(name string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// ParseFile parses a Go or YAML file and extracts structure declarations
func ParseFile(filename string) ([]*TypeLayout, error) {
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		return ParseYAMLFile(filename)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return extractTypes(file)
}

// ParseSource parses Go source text; filename is used in error positions.
func ParseSource(filename string, src []byte) ([]*TypeLayout, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return extractTypes(file)
}

func extractTypes(file *ast.File) ([]*TypeLayout, error) {
	var types []*TypeLayout
	registry := collectAliases(file)

	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}

		for _, spec := range genDecl.Specs {
			typeSpec := spec.(*ast.TypeSpec)
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok {
				continue // Not a struct
			}

			// Extract @layout annotation from comments directly above type
			doc := typeSpec.Doc
			if doc == nil {
				doc = genDecl.Doc
			}
			anno, err := extractAnnotation(doc)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", typeSpec.Name.Name, err)
			}
			if anno == nil {
				continue // No @layout, skip this type
			}

			// Extract fields with layout tags
			fields, err := extractFields(structType, registry)
			if err != nil {
				return nil, fmt.Errorf("%s.%w", typeSpec.Name.Name, err)
			}
			if len(fields) == 0 {
				continue // No layout tags, skip
			}

			types = append(types, &TypeLayout{
				Name:   typeSpec.Name.Name,
				Anno:   anno,
				Fields: fields,
				Source: "go",
			})
		}
	}

	if err := validate(types); err != nil {
		return nil, err
	}
	return types, nil
}

// collectAliases registers "type PageID uint64" declarations so tags
// like "@8" on a PageID field resolve to u64.
func collectAliases(file *ast.File) *analyzer.TypeRegistry {
	registry := analyzer.NewTypeRegistry()
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}
		for _, spec := range genDecl.Specs {
			typeSpec := spec.(*ast.TypeSpec)
			if ident, ok := typeSpec.Type.(*ast.Ident); ok {
				registry.RegisterAlias(typeSpec.Name.Name, ident.Name)
			}
		}
	}
	return registry
}

func extractAnnotation(doc *ast.CommentGroup) (*TypeAnnotation, error) {
	if doc == nil {
		return nil, nil
	}

	// Extract comment text lines
	var lines []string
	for _, comment := range doc.List {
		cleaned := CleanComment(comment.Text)
		lines = append(lines, cleaned)
	}

	// Search for @layout annotation
	anno, found, err := FindAnnotation(lines)
	if !found {
		return nil, nil
	}

	return anno, err
}

func extractFields(structType *ast.StructType, registry *analyzer.TypeRegistry) ([]Field, error) {
	var fields []Field

	for _, field := range structType.Fields.List {
		if len(field.Names) == 0 {
			continue // Embedded field, skip
		}

		if field.Tag == nil {
			continue // No tags
		}

		// Parse struct tag
		tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
		layoutTag := tag.Get("layout")
		if layoutTag == "" {
			continue // No layout tag
		}

		name := field.Names[0].Name
		layout, err := ParseTag(layoutTag)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		goType := typeToString(field.Type)
		if layout.Type == "" {
			layout.Type, err = inferType(goType, registry)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}

		fields = append(fields, Field{
			Name:   name,
			GoType: goType,
			Layout: layout,
		})
	}

	return fields, nil
}

// inferType maps a Go field type to a layout type for tags without one.
func inferType(goType string, registry *analyzer.TypeRegistry) (string, error) {
	resolved := registry.ResolveType(goType)
	if resolved == "string" {
		return analyzer.ZString, nil
	}
	if s, ok := analyzer.LookupScalar(resolved); ok {
		return s.Name, nil
	}
	if strings.HasPrefix(goType, "*") || strings.HasPrefix(goType, "[") || goType == "unknown" {
		return "", fmt.Errorf("type %s has no binary layout", goType)
	}
	// A named struct: a nested structure of that layout.
	return goType, nil
}

// typeToString converts AST type expression to string
func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		// Simple type: uint16, Header, etc.
		return t.Name

	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", exprToString(t.Len), typeToString(t.Elt))

	case *ast.StarExpr:
		// Pointer: not supported for binary layout
		return "*" + typeToString(t.X)

	default:
		return "unknown"
	}
}

func exprToString(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return e.Value
	case *ast.Ident:
		return e.Name
	default:
		return "?"
	}
}

// validate checks names are unique and offsets refer to declared fields.
func validate(types []*TypeLayout) error {
	seen := make(map[string]bool)
	for _, t := range types {
		if seen[t.Name] {
			return fmt.Errorf("duplicate layout %s", t.Name)
		}
		seen[t.Name] = true

		fields := make(map[string]bool)
		for _, f := range t.Fields {
			if fields[f.Name] {
				return fmt.Errorf("%s: duplicate field %s", t.Name, f.Name)
			}
			fields[f.Name] = true
		}
		for _, f := range t.Fields {
			for _, ref := range f.Layout.Refs() {
				if !fields[ref] {
					return fmt.Errorf("%s.%s: offset refers to unknown field %s", t.Name, f.Name, ref)
				}
			}
		}
	}
	return nil
}
