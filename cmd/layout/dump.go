package main

import (
	"io"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/alexhholmes/binlayout/expr"
	"github.com/alexhholmes/binlayout/schema"
)

// cborMode encodes with Core Deterministic Encoding so the same instance
// always produces the same bytes.
var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("layout: CBOR encoder initialization failed: " + err.Error())
	}
}

// yamlNode renders an instance as a mapping in declaration order.
func yamlNode(inst *schema.Instance) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, v := range inst.Values() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Name}
		var value *yaml.Node
		if nested, ok := v.Value.(*schema.Instance); ok {
			if nested == nil {
				value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
			} else {
				var err error
				if value, err = yamlNode(nested); err != nil {
					return nil, err
				}
			}
		} else {
			value = &yaml.Node{}
			if err := value.Encode(v.Value); err != nil {
				return nil, errors.Wrapf(err, "encode %s", v.Name)
			}
		}
		node.Content = append(node.Content, key, value)
	}
	return node, nil
}

func writeYAML(w io.Writer, inst *schema.Instance) error {
	node, err := yamlNode(inst)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return err
	}
	return enc.Close()
}

// valueMap is the CBOR form of an instance. CBOR maps carry no order;
// deterministic encoding sorts the keys.
func valueMap(inst *schema.Instance) map[string]any {
	m := make(map[string]any)
	for _, v := range inst.Values() {
		if nested, ok := v.Value.(*schema.Instance); ok {
			if nested == nil {
				m[v.Name] = nil
			} else {
				m[v.Name] = valueMap(nested)
			}
			continue
		}
		m[v.Name] = v.Value
	}
	return m
}

func writeCBOR(w io.Writer, inst *schema.Instance) error {
	data, err := cborMode.Marshal(valueMap(inst))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// setField applies "Name=value" or "Outer.Inner=value" to inst. The value
// is parsed as the field's current type.
func setField(inst *schema.Instance, assignment string) error {
	path, text, ok := strings.Cut(assignment, "=")
	if !ok {
		return errors.Errorf("--set %s: expected Name=value", assignment)
	}
	names := strings.Split(path, ".")
	for _, name := range names[:len(names)-1] {
		v, ok := inst.Value(name)
		if !ok {
			return errors.Errorf("--set %s: %s has no stored field %s", assignment, inst.Schema(), name)
		}
		nested, ok := v.(*schema.Instance)
		if !ok || nested == nil {
			return errors.Errorf("--set %s: %s is not a structure", assignment, name)
		}
		inst = nested
	}

	name := names[len(names)-1]
	current, ok := inst.Value(name)
	if !ok {
		return errors.Errorf("--set %s: %s has no stored field %s", assignment, inst.Schema(), name)
	}
	v, err := parseValue(current, text)
	if err != nil {
		return errors.Wrapf(err, "--set %s", assignment)
	}
	return inst.SetValue(name, v)
}

func parseValue(current any, text string) (any, error) {
	switch current.(type) {
	case uint8:
		return parseUint[uint8](text, 8)
	case uint16:
		return parseUint[uint16](text, 16)
	case uint32:
		return parseUint[uint32](text, 32)
	case uint64:
		return parseUint[uint64](text, 64)
	case int8:
		return parseInt[int8](text, 8)
	case int16:
		return parseInt[int16](text, 16)
	case int32:
		return parseInt[int32](text, 32)
	case int64:
		return parseInt[int64](text, 64)
	case float32:
		v, err := strconv.ParseFloat(text, 32)
		return float32(v), err
	case float64:
		return strconv.ParseFloat(text, 64)
	case string:
		return text, nil
	default:
		return nil, errors.Errorf("cannot set a field of type %T", current)
	}
}

func parseUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](text string, bits int) (any, error) {
	v, err := strconv.ParseUint(text, 0, bits)
	return T(v), err
}

func parseInt[T ~int8 | ~int16 | ~int32 | ~int64](text string, bits int) (any, error) {
	v, err := strconv.ParseInt(text, 0, bits)
	return T(v), err
}

func joinNames(elems []*expr.Element) string {
	names := make([]string, len(elems))
	for i, e := range elems {
		names[i] = e.Name()
	}
	return strings.Join(names, ", ")
}
