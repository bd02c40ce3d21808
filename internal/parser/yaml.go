package parser

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alexhholmes/binlayout/internal/analyzer"
)

// File is the YAML form of a set of layouts:
//
//	aliases:
//	  PageID: u64
//	layouts:
//	  - name: Header
//	    endian: little
//	    size: 20
//	    fields:
//	      - name: Value1
//	        layout: u32@0
//	      - name: Ref2
//	        layout: u32@Value1
type File struct {
	Aliases map[string]string `yaml:"aliases,omitempty"`
	Layouts []LayoutDecl      `yaml:"layouts"`
}

// LayoutDecl is one structure in a YAML file.
type LayoutDecl struct {
	Name   string      `yaml:"name"`
	Endian string      `yaml:"endian,omitempty"`
	Size   int         `yaml:"size,omitempty"`
	Fields []FieldDecl `yaml:"fields"`
}

// FieldDecl is one field in a YAML file; Layout uses the tag syntax.
type FieldDecl struct {
	Name   string `yaml:"name"`
	Layout string `yaml:"layout"`
}

// ParseYAMLFile reads and parses a YAML layout file.
func ParseYAMLFile(filename string) ([]*TypeLayout, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses layouts from YAML. Unknown keys are rejected.
func ParseYAML(data []byte) ([]*TypeLayout, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	registry := analyzer.NewTypeRegistry()
	for alias, underlying := range file.Aliases {
		registry.RegisterAlias(alias, underlying)
	}

	types := make([]*TypeLayout, 0, len(file.Layouts))
	for _, decl := range file.Layouts {
		if decl.Name == "" {
			return nil, fmt.Errorf("layout without a name")
		}
		anno := &TypeAnnotation{Size: decl.Size, Endian: decl.Endian}
		if anno.Endian == "" {
			anno.Endian = "little"
		}
		if anno.Endian != "little" && anno.Endian != "big" {
			return nil, fmt.Errorf("%s: endian must be 'little' or 'big', got: %s", decl.Name, anno.Endian)
		}
		if anno.Size < 0 {
			return nil, fmt.Errorf("%s: size must be positive, got: %d", decl.Name, anno.Size)
		}

		t := &TypeLayout{Name: decl.Name, Anno: anno, Source: "yaml"}
		for _, fd := range decl.Fields {
			if fd.Name == "" {
				return nil, fmt.Errorf("%s: field without a name", decl.Name)
			}
			layout, err := ParseTag(fd.Layout)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", decl.Name, fd.Name, err)
			}
			if layout.Type == "" {
				return nil, fmt.Errorf("%s.%s: missing type", decl.Name, fd.Name)
			}
			if resolved := registry.ResolveType(layout.Type); resolved != layout.Type {
				resolvedLayout, err := resolveAlias(layout, resolved)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", decl.Name, fd.Name, err)
				}
				layout = resolvedLayout
			}
			t.Fields = append(t.Fields, Field{Name: fd.Name, Layout: layout})
		}
		types = append(types, t)
	}

	if err := validate(types); err != nil {
		return nil, err
	}
	return types, nil
}

func resolveAlias(layout *FieldLayout, resolved string) (*FieldLayout, error) {
	base, endian := splitEndianSuffix(resolved)
	if s, ok := analyzer.LookupScalar(base); ok {
		base = s.Name
	}
	out := *layout
	out.Type = base
	if out.Endian == "" {
		out.Endian = endian
	}
	if out.IsLiteral() {
		if _, ok := analyzer.LookupScalar(out.Type); !ok {
			return nil, fmt.Errorf("literal must have a numeric type, got: %s", out.Type)
		}
	}
	return &out, nil
}
