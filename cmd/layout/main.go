// layout decodes binary files with declared layouts.
//
// Usage:
//
//	layout [flags] <schema-file>            describe the layouts
//	layout [flags] <schema-file> <input>    decode input and print its values
//
// The schema file is YAML (.yaml, .yml) or Go source with @layout
// annotations. Input may be compressed with zstd or lz4.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/alexhholmes/binlayout/internal/codegen"
	"github.com/alexhholmes/binlayout/internal/loader"
	"github.com/alexhholmes/binlayout/internal/parser"
	"github.com/alexhholmes/binlayout/schema"
	"github.com/alexhholmes/binlayout/stream"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	typeName    string
	format      string
	compression string
	order       bool
	out         string
	verify      bool
	gen         string
	sets        []string
	verbose     bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("layout", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.typeName, "type", "", "layout to decode with (default: first in file)")
	flagSet.StringVar(&opts.format, "format", "yaml", "value output format: yaml or cbor")
	flagSet.StringVar(&opts.compression, "compression", "none", "input and output compression: none, zstd or lz4")
	flagSet.BoolVar(&opts.order, "order", false, "print read and write order")
	flagSet.StringVar(&opts.out, "out", "", "re-encode the decoded values to this file")
	flagSet.BoolVar(&opts.verify, "verify", false, "check that re-encoding reproduces the input")
	flagSet.StringVar(&opts.gen, "gen", "", "print Go declarations for the layouts in package `PKG`")
	flagSet.StringArrayVar(&opts.sets, "set", nil, "change a field before re-encoding: Name=value, Outer.Inner=value")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: layout [flags] <schema-file> [input]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() < 1 || flagSet.NArg() > 2 {
		flagSet.Usage()
		return errors.New("expected a schema file and an optional input file")
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	schemaFile := flagSet.Arg(0)
	layouts, err := parser.ParseFile(schemaFile)
	if err != nil {
		return errors.Wrap(err, schemaFile)
	}
	if len(layouts) == 0 {
		return errors.Errorf("%s: no layouts found", schemaFile)
	}

	if opts.gen != "" {
		src, err := codegen.NewGenerator(layouts, opts.gen, filepath.Base(schemaFile)).Generate()
		if err != nil {
			return err
		}
		return output(opts.out, stdout, src)
	}

	set, err := loader.Load(layouts, schema.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := set.Build(); err != nil {
		return err
	}

	if flagSet.NArg() == 1 {
		return describe(stdout, set, opts)
	}

	name := opts.typeName
	if name == "" {
		name = set.Names()[0]
	}
	s, ok := set.Schema(name)
	if !ok {
		return errors.Errorf("%s: no layout named %s", schemaFile, name)
	}
	if opts.order {
		if err := printOrder(stdout, s); err != nil {
			return err
		}
	}
	return decode(stdout, logger, s, flagSet.Arg(1), opts)
}

func decode(stdout io.Writer, logger *slog.Logger, s *schema.Schema, input string, opts options) error {
	compression, err := stream.ParseCompression(opts.compression)
	if err != nil {
		return err
	}
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	data, err := stream.Decompress(compression, f)
	f.Close()
	if err != nil {
		return errors.Wrap(err, input)
	}
	logger.Debug("input loaded", "file", input, "bytes", len(data), "compression", compression)

	inst, err := s.Read(stream.NewContext(data))
	if err != nil {
		return errors.Wrapf(err, "decode %s", input)
	}

	for _, assignment := range opts.sets {
		if err := setField(inst, assignment); err != nil {
			return err
		}
	}

	switch opts.format {
	case "yaml":
		if err := writeYAML(stdout, inst); err != nil {
			return err
		}
	case "cbor":
		if err := writeCBOR(stdout, inst); err != nil {
			return err
		}
	default:
		return errors.Errorf("format must be yaml or cbor, got: %s", opts.format)
	}

	if opts.verify {
		if err := verify(stdout, inst, data); err != nil {
			return err
		}
	}

	if opts.out != "" {
		// Start from the input so bytes no field covers are kept.
		encoded := append([]byte(nil), data...)
		if err := inst.Write(stream.NewContext(encoded)); err != nil {
			return errors.Wrap(err, "encode")
		}
		var buf bytes.Buffer
		if err := stream.Compress(compression, &buf, encoded); err != nil {
			return err
		}
		if err := os.WriteFile(opts.out, buf.Bytes(), 0o644); err != nil {
			return err
		}
		logger.Debug("output written", "file", opts.out, "bytes", buf.Len())
	}
	return nil
}

// verify re-encodes inst into a zeroed buffer and compares digests.
func verify(w io.Writer, inst *schema.Instance, data []byte) error {
	encoded := make([]byte, len(data))
	if err := inst.Write(stream.NewContext(encoded)); err != nil {
		return errors.Wrap(err, "verify")
	}
	want, got := blake3.Sum256(data), blake3.Sum256(encoded)
	if want != got {
		at := 0
		for at < len(data) && data[at] == encoded[at] {
			at++
		}
		return errors.Errorf("verify: re-encoded %x differs from input %x at byte %d", got[:8], want[:8], at)
	}
	fmt.Fprintf(w, "# verified %d bytes, blake3 %x\n", len(data), got)
	return nil
}

func describe(w io.Writer, set *loader.Set, opts options) error {
	for _, name := range set.Names() {
		l, _ := set.Layout(name)
		fmt.Fprintf(w, "%s (size=%d, endian=%s)\n", name, set.Size(name), l.Anno.Endian)
		fmt.Fprintln(w, "Fields:")
		for _, f := range l.Fields {
			fmt.Fprintf(w, "  %-15s %s\n", f.Name, describeField(f.Layout))
		}
		s, _ := set.Schema(name)
		if opts.order {
			if err := printOrder(w, s); err != nil {
				return err
			}
		}
		layout, err := s.Layout()
		if err != nil {
			return err
		}
		for _, warning := range layout.Warnings() {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func describeField(fl *parser.FieldLayout) string {
	var b strings.Builder
	b.WriteString(fl.Type)
	switch {
	case fl.IsLiteral():
		b.WriteString(" = " + fl.Literal)
	case fl.At == nil:
		b.WriteString(" at cursor")
	default:
		b.WriteString(" @")
		for i, t := range fl.At {
			if i > 0 && !t.Neg {
				b.WriteString("+")
			}
			b.WriteString(t.String())
		}
	}
	if fl.Endian != "" {
		b.WriteString(", endian=" + fl.Endian)
	}
	if fl.Access != "" {
		b.WriteString(", access=" + fl.Access)
	}
	return b.String()
}

func printOrder(w io.Writer, s *schema.Schema) error {
	l, err := s.Layout()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# read order:  %s\n", joinNames(l.ReadOrder()))
	fmt.Fprintf(w, "# write order: %s\n", joinNames(l.WriteOrder()))
	return nil
}

func output(path string, stdout io.Writer, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
