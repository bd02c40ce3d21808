package codegen

import (
	"fmt"
	"go/format"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alexhholmes/binlayout/internal/analyzer"
	"github.com/alexhholmes/binlayout/internal/parser"
)

const modulePath = "github.com/alexhholmes/binlayout"

// Generator generates schema declarations and accessors for parsed layouts
type Generator struct {
	layouts []*parser.TypeLayout
	byName  map[string]*parser.TypeLayout
	pkg     string
	source  string // Input file name for the header, optional
}

// NewGenerator creates a new code generator for one output file
func NewGenerator(layouts []*parser.TypeLayout, pkg, source string) *Generator {
	byName := make(map[string]*parser.TypeLayout, len(layouts))
	for _, l := range layouts {
		byName[l.Name] = l
	}
	return &Generator{layouts: layouts, byName: byName, pkg: pkg, source: source}
}

// Analyze checks every layout the way a schema build would, without
// declaring anything. Generated code for a layout that fails here would
// not compile (offset cycles) or would never finish reading (a structure
// containing itself).
func (g *Generator) Analyze() ([]*analyzer.AnalyzedLayout, error) {
	if err := g.checkNesting(); err != nil {
		return nil, err
	}
	var out []*analyzer.AnalyzedLayout
	for _, l := range g.layouts {
		decls, err := g.decls(l)
		if err != nil {
			return nil, err
		}
		analyzed, err := analyzer.Analyze(l.Name, decls)
		if err != nil {
			return nil, fmt.Errorf("%s: %s", l.Name, strings.Join(analyzed.Errors, "; "))
		}
		out = append(out, analyzed)
	}
	return out, nil
}

func (g *Generator) decls(l *parser.TypeLayout) ([]analyzer.Decl, error) {
	index := make(map[string]int, len(l.Fields))
	for i, f := range l.Fields {
		index[f.Name] = i
	}
	decls := make([]analyzer.Decl, len(l.Fields))
	for i, f := range l.Fields {
		access := accessOf(f.Layout)
		d := analyzer.Decl{
			Name:     f.Name,
			Read:     access == "rw" || access == "ro",
			Write:    access == "rw" || access == "wo",
			CanWrite: !f.Layout.IsLiteral(),
		}
		for _, ref := range f.Layout.Refs() {
			dep, ok := index[ref]
			if !ok {
				d.Foreign = append(d.Foreign, ref)
				continue
			}
			if s, ok := analyzer.LookupScalar(l.Fields[dep].Layout.Type); !ok || s.Float {
				return nil, fmt.Errorf("%s.%s: offset refers to %s, which is %s, not an integer",
					l.Name, f.Name, ref, l.Fields[dep].Layout.Type)
			}
			d.Deps = append(d.Deps, dep)
		}
		if len(f.Layout.At) == 1 && f.Layout.At[0].Field == "" && !f.Layout.At[0].Neg {
			if s, ok := analyzer.LookupScalar(f.Layout.Type); ok && !f.Layout.IsLiteral() {
				d.Region = &analyzer.Region{Start: f.Layout.At[0].Value, Size: s.Size}
			}
		}
		decls[i] = d
	}
	return decls, nil
}

// checkNesting rejects unknown structure types and structures that
// contain themselves.
func (g *Generator) checkNesting() error {
	index := make(map[string]int, len(g.layouts))
	for i, l := range g.layouts {
		index[l.Name] = i
	}
	var problem error
	_, cycle := analyzer.Order(len(g.layouts), func(i int) []int {
		var deps []int
		for _, f := range g.layouts[i].Fields {
			if isBuiltin(f.Layout.Type) {
				continue
			}
			dep, ok := index[f.Layout.Type]
			if !ok {
				if problem == nil {
					problem = fmt.Errorf("%s.%s: unknown layout %s", g.layouts[i].Name, f.Name, f.Layout.Type)
				}
				continue
			}
			deps = append(deps, dep)
		}
		return deps
	})
	if problem != nil {
		return problem
	}
	if cycle != nil {
		names := make([]string, len(cycle))
		for i, idx := range cycle {
			names[i] = g.layouts[idx].Name
		}
		return fmt.Errorf("layout %s contains itself: %s", names[0], strings.Join(names, " -> "))
	}
	return nil
}

// Generate returns the formatted Go file
func (g *Generator) Generate() ([]byte, error) {
	if _, err := g.Analyze(); err != nil {
		return nil, err
	}

	var body strings.Builder
	for _, l := range g.layouts {
		code, err := g.generateLayout(l)
		if err != nil {
			return nil, err
		}
		body.WriteString(code)
	}

	var code strings.Builder
	if g.source != "" {
		code.WriteString(fmt.Sprintf("// Code generated by layout from %s. DO NOT EDIT.\n\n", g.source))
	} else {
		code.WriteString("// Code generated by layout. DO NOT EDIT.\n\n")
	}
	code.WriteString(fmt.Sprintf("package %s\n\n", g.pkg))
	code.WriteString("import (\n")
	if strings.Contains(body.String(), "fmt.") {
		code.WriteString("\t\"fmt\"\n\n")
	}
	if strings.Contains(body.String(), "expr.") {
		code.WriteString(fmt.Sprintf("\t%q\n", modulePath+"/expr"))
	}
	code.WriteString(fmt.Sprintf("\t%q\n", modulePath+"/schema"))
	code.WriteString(fmt.Sprintf("\t%q\n", modulePath+"/stream"))
	code.WriteString(")\n")
	code.WriteString(body.String())

	src, err := format.Source([]byte(code.String()))
	if err != nil {
		return nil, fmt.Errorf("format generated code: %w", err)
	}
	return src, nil
}

func (g *Generator) generateLayout(l *parser.TypeLayout) (string, error) {
	var code strings.Builder
	schemaVar := l.Name + "Schema"

	code.WriteString(fmt.Sprintf("\n// %s describes the binary layout of %s.\n", schemaVar, l.Name))
	code.WriteString(fmt.Sprintf("var %s = schema.New(%q)\n\n", schemaVar, l.Name))

	code.WriteString("var (\n")
	for _, f := range l.Fields {
		decl, err := g.declaration(l, f)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", l.Name, f.Name, err)
		}
		code.WriteString(fmt.Sprintf("\t%s = %s\n", fieldVar(l, f), decl))
	}
	code.WriteString(")\n\n")

	if l.Source != "go" {
		code.WriteString(g.generateStruct(l))
	}
	code.WriteString(g.generateLoad(l))
	code.WriteString(g.generateStore(l))
	code.WriteString(g.generateReadWrite(l))
	if l.Anno != nil && l.Anno.Size > 0 {
		code.WriteString(g.generateMarshal(l))
	}
	return code.String(), nil
}

// declaration returns the schema.Declare call for one field
func (g *Generator) declaration(l *parser.TypeLayout, f parser.Field) (string, error) {
	fl := f.Layout
	at, err := g.offset(l, fl.At)
	if err != nil {
		return "", err
	}
	access := accessOf(fl)

	var e, valueType string
	switch {
	case fl.Type == analyzer.ZString:
		e, valueType = fmt.Sprintf("expr.ZString(%s)", at), "string"
	case fl.Type == analyzer.TailString:
		e, valueType = fmt.Sprintf("expr.TailString(%s)", at), "string"
	case !isBuiltin(fl.Type):
		e, valueType = fmt.Sprintf("schema.Nested(%sSchema, %s)", fl.Type, at), "*schema.Instance"
	case fl.IsLiteral():
		valueType = scalarGoType(f)
		lit, err := checkLiteral(fl)
		if err != nil {
			return "", err
		}
		e = fmt.Sprintf("expr.Lit[%s](%s)", valueType, lit)
	default:
		valueType = scalarGoType(f)
		ctor := "expr.Read"
		if access == "rw" || access == "wo" {
			ctor = "expr.ReadWrite"
		}
		e = fmt.Sprintf("%s[%s](%s, %s)", ctor, valueType, at, g.order(l, fl))
	}

	return fmt.Sprintf("schema.Declare[%s](%sSchema, %q, %s, %s)",
		valueType, l.Name, f.Name, e, accessConst[access]), nil
}

// offset renders offset terms as an expr.Expression[int64]
func (g *Generator) offset(l *parser.TypeLayout, terms []parser.Term) (string, error) {
	if len(terms) == 0 {
		return "expr.Here", nil
	}
	var acc string
	for i, t := range terms {
		var e string
		if t.Field == "" {
			v := t.Value
			if i == 0 && t.Neg {
				v = -v
			}
			e = fmt.Sprintf("expr.Lit[int64](%d)", v)
		} else {
			ref, ok := l.Lookup(t.Field)
			if !ok {
				return "", fmt.Errorf("offset refers to unknown field %s", t.Field)
			}
			e = fmt.Sprintf("expr.Offset[%s](%s)", scalarGoType(*ref), fieldVar(l, *ref))
			if i == 0 && t.Neg {
				e = fmt.Sprintf("expr.Sub(expr.Lit[int64](0), %s)", e)
			}
		}
		switch {
		case i == 0:
			acc = e
		case t.Neg:
			acc = fmt.Sprintf("expr.Sub(%s, %s)", acc, e)
		default:
			acc = fmt.Sprintf("expr.Add(%s, %s)", acc, e)
		}
	}
	return acc, nil
}

func (g *Generator) order(l *parser.TypeLayout, fl *parser.FieldLayout) string {
	endian := fl.Endian
	if endian == "" && l.Anno != nil {
		endian = l.Anno.Endian
	}
	if endian == "big" {
		return "stream.BigEndian"
	}
	return "stream.LittleEndian"
}

// generateStruct declares a Go type for layouts that came from YAML
func (g *Generator) generateStruct(l *parser.TypeLayout) string {
	var code strings.Builder
	code.WriteString(fmt.Sprintf("// %s is a decoded %s.\n", l.Name, l.Name))
	code.WriteString(fmt.Sprintf("type %s struct {\n", l.Name))
	for _, f := range l.Fields {
		if accessOf(f.Layout) == "none" {
			continue
		}
		code.WriteString(fmt.Sprintf("\t%s %s\n", f.Name, structGoType(f)))
	}
	code.WriteString("}\n\n")
	return code.String()
}

func (g *Generator) generateLoad(l *parser.TypeLayout) string {
	var code strings.Builder
	code.WriteString(fmt.Sprintf("func (p *%s) load(inst *schema.Instance) {\n", l.Name))
	for _, f := range l.Fields {
		if accessOf(f.Layout) == "none" {
			continue
		}
		get := fmt.Sprintf("schema.Get(inst, %s)", fieldVar(l, f))
		switch {
		case !isBuiltin(f.Layout.Type):
			code.WriteString(fmt.Sprintf("\tif v := %s; v != nil {\n", get))
			code.WriteString(fmt.Sprintf("\t\tp.%s.load(v)\n", f.Name))
			code.WriteString("\t}\n")
		case isString(f.Layout.Type) && structGoType(f) != "string":
			code.WriteString(fmt.Sprintf("\tp.%s = %s(%s)\n", f.Name, structGoType(f), get))
		default:
			code.WriteString(fmt.Sprintf("\tp.%s = %s\n", f.Name, get))
		}
	}
	code.WriteString("}\n\n")
	return code.String()
}

func (g *Generator) generateStore(l *parser.TypeLayout) string {
	var code strings.Builder
	code.WriteString(fmt.Sprintf("func (p *%s) store(inst *schema.Instance) error {\n", l.Name))
	for _, f := range l.Fields {
		if accessOf(f.Layout) == "none" {
			continue
		}
		field := fieldVar(l, f)
		switch {
		case !isBuiltin(f.Layout.Type):
			v := "in" + f.Name
			code.WriteString(fmt.Sprintf("\t%s, err := %sSchema.New()\n", v, f.Layout.Type))
			code.WriteString("\tif err != nil {\n\t\treturn err\n\t}\n")
			code.WriteString(fmt.Sprintf("\tif err := p.%s.store(%s); err != nil {\n\t\treturn err\n\t}\n", f.Name, v))
			code.WriteString(fmt.Sprintf("\tschema.Set(inst, %s, %s)\n", field, v))
		case isString(f.Layout.Type) && structGoType(f) != "string":
			code.WriteString(fmt.Sprintf("\tschema.Set(inst, %s, string(p.%s))\n", field, f.Name))
		default:
			code.WriteString(fmt.Sprintf("\tschema.Set(inst, %s, p.%s)\n", field, f.Name))
		}
	}
	code.WriteString("\treturn nil\n")
	code.WriteString("}\n\n")
	return code.String()
}

func (g *Generator) generateReadWrite(l *parser.TypeLayout) string {
	var code strings.Builder
	code.WriteString("// ReadLayout decodes p from ctx.\n")
	code.WriteString(fmt.Sprintf("func (p *%s) ReadLayout(ctx stream.Context) error {\n", l.Name))
	code.WriteString(fmt.Sprintf("\tinst, err := %sSchema.Read(ctx)\n", l.Name))
	code.WriteString("\tif err != nil {\n\t\treturn err\n\t}\n")
	code.WriteString("\tp.load(inst)\n")
	code.WriteString("\treturn nil\n")
	code.WriteString("}\n\n")

	code.WriteString("// WriteLayout encodes p into ctx.\n")
	code.WriteString(fmt.Sprintf("func (p *%s) WriteLayout(ctx stream.Context) error {\n", l.Name))
	code.WriteString(fmt.Sprintf("\tinst, err := %sSchema.New()\n", l.Name))
	code.WriteString("\tif err != nil {\n\t\treturn err\n\t}\n")
	code.WriteString("\tif err := p.store(inst); err != nil {\n\t\treturn err\n\t}\n")
	code.WriteString("\treturn inst.Write(ctx)\n")
	code.WriteString("}\n\n")
	return code.String()
}

func (g *Generator) generateMarshal(l *parser.TypeLayout) string {
	var code strings.Builder
	size := l.Anno.Size

	code.WriteString(fmt.Sprintf("func (p *%s) MarshalLayout() ([]byte, error) {\n", l.Name))
	code.WriteString(fmt.Sprintf("\tbuf := make([]byte, %d)\n", size))
	code.WriteString("\tif err := p.WriteLayout(stream.NewContext(buf)); err != nil {\n\t\treturn nil, err\n\t}\n")
	code.WriteString("\treturn buf, nil\n")
	code.WriteString("}\n\n")

	code.WriteString(fmt.Sprintf("func (p *%s) UnmarshalLayout(buf []byte) error {\n", l.Name))
	code.WriteString(fmt.Sprintf("\tif len(buf) != %d {\n", size))
	code.WriteString(fmt.Sprintf("\t\treturn fmt.Errorf(\"expected %d bytes, got %%d\", len(buf))\n", size))
	code.WriteString("\t}\n")
	code.WriteString("\treturn p.ReadLayout(stream.NewContext(buf))\n")
	code.WriteString("}\n")
	return code.String()
}

var accessConst = map[string]string{
	"rw":   "schema.ReadWrite",
	"ro":   "schema.Readable",
	"wo":   "schema.Writable",
	"none": "schema.Hidden",
}

// accessOf applies the defaults: literals are read-only, the rest rw.
func accessOf(fl *parser.FieldLayout) string {
	if fl.Access != "" {
		return fl.Access
	}
	if fl.IsLiteral() {
		return "ro"
	}
	return "rw"
}

// fieldVar names the package-level field variable: headerValue1 for
// Header.Value1. Unexported so it cannot clash with exported user types.
func fieldVar(l *parser.TypeLayout, f parser.Field) string {
	r, size := utf8.DecodeRuneInString(l.Name)
	return string(unicode.ToLower(r)) + l.Name[size:] + f.Name
}

func isString(typ string) bool {
	return typ == analyzer.ZString || typ == analyzer.TailString
}

func isBuiltin(typ string) bool {
	if isString(typ) {
		return true
	}
	_, ok := analyzer.LookupScalar(typ)
	return ok
}

// scalarGoType is the value type of a scalar field: the declared Go type
// when there is one, so named types like PageID are kept.
func scalarGoType(f parser.Field) string {
	if f.GoType != "" {
		return f.GoType
	}
	s, _ := analyzer.LookupScalar(f.Layout.Type)
	return s.GoType
}

func structGoType(f parser.Field) string {
	if f.GoType != "" {
		return f.GoType
	}
	switch {
	case isString(f.Layout.Type):
		return "string"
	case !isBuiltin(f.Layout.Type):
		return f.Layout.Type
	}
	return scalarGoType(f)
}

// checkLiteral makes sure the literal fits its type, so the generated
// constant conversion compiles.
func checkLiteral(fl *parser.FieldLayout) (string, error) {
	s, _ := analyzer.LookupScalar(fl.Type)
	var err error
	switch {
	case s.Float:
		_, err = strconv.ParseFloat(fl.Literal, s.Size*8)
	case s.Signed:
		_, err = strconv.ParseInt(fl.Literal, 0, s.Size*8)
	default:
		_, err = strconv.ParseUint(fl.Literal, 0, s.Size*8)
	}
	if err != nil {
		return "", fmt.Errorf("literal %s does not fit %s", fl.Literal, fl.Type)
	}
	return fl.Literal, nil
}
