// internal/rules/fieldpath.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Schema-driven property access for dynamic records.
 *
 * types.Record items (decoded JSON objects) carry no static types, so the
 * schema supplies them: each property name maps to a type name such as
 * "int", "[]string" or "map[string]float". Property names may be dotted
 * paths ("user.address.city") that traverse nested objects.
 *
 * Values are converted from their JSON representation to the declared
 * type on access. A missing path, a JSON null, or a value that does not
 * convert is reported as null, so the per-operator null policy applies
 * instead of an evaluation error.
 *
 * Supported type names:
 *   string, bool, int, int64, int32, uint, uint64, float, float64,
 *   duration (Go duration string), time (RFC 3339),
 *   []T and map[string]T for any supported T.
 */

var scalarTypes = map[string]reflect.Type{
	"string":   reflect.TypeFor[string](),
	"bool":     reflect.TypeFor[bool](),
	"int":      reflect.TypeFor[int](),
	"int32":    reflect.TypeFor[int32](),
	"int64":    reflect.TypeFor[int64](),
	"uint":     reflect.TypeFor[uint](),
	"uint64":   reflect.TypeFor[uint64](),
	"float":    reflect.TypeFor[float64](),
	"float64":  reflect.TypeFor[float64](),
	"duration": reflect.TypeFor[time.Duration](),
	"time":     timeType,
}

// ParseTypeName converts a schema type name into a reflect.Type.
func ParseTypeName(name string) (reflect.Type, error) {
	name = strings.TrimSpace(name)
	if t, ok := scalarTypes[name]; ok {
		return t, nil
	}
	if elem, ok := strings.CutPrefix(name, "[]"); ok {
		et, err := ParseTypeName(elem)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(et), nil
	}
	if elem, ok := strings.CutPrefix(name, "map[string]"); ok {
		et, err := ParseTypeName(elem)
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(scalarTypes["string"], et), nil
	}
	return nil, fmt.Errorf("%w: unknown schema type %q", types.ErrTypeMismatch, name)
}

// SchemaDescriptor resolves properties of types.Record items from a declared schema.
type SchemaDescriptor struct {
	props map[string]reflect.Type
}

// NewSchemaDescriptor parses every type name in schema.
func NewSchemaDescriptor(schema map[string]string) (*SchemaDescriptor, error) {
	d := &SchemaDescriptor{props: make(map[string]reflect.Type, len(schema))}
	for name, typeName := range schema {
		t, err := ParseTypeName(typeName)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		d.props[name] = t
	}
	return d, nil
}

// Properties lists the declared property names in sorted order.
func (d *SchemaDescriptor) Properties() []string {
	names := make([]string, 0, len(d.props))
	for name := range d.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements Descriptor.
func (d *SchemaDescriptor) Resolve(name string) (Property[types.Record], error) {
	t, ok := d.props[name]
	if !ok {
		return Property[types.Record]{}, fmt.Errorf("%w: %q not in schema", types.ErrPropertyNotFound, name)
	}
	path := strings.Split(name, ".")
	return Property[types.Record]{
		Name: name,
		Type: t,
		Get: func(rec types.Record) reflect.Value {
			raw, found := ResolvePath(rec, path)
			if !found {
				return reflect.Value{}
			}
			return convertDynamic(raw, t)
		},
	}, nil
}

// ResolvePath walks nested JSON objects following path.
// A literal key containing dots is preferred over traversal at each level.
func ResolvePath(rec map[string]any, path []string) (any, bool) {
	var current any = rec
	for i := 0; i < len(path); i++ {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		// "a.b" stored flat wins over {"a": {"b": ...}}
		if joined := strings.Join(path[i:], "."); i < len(path)-1 {
			if v, ok := obj[joined]; ok {
				return v, true
			}
		}
		v, ok := obj[path[i]]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case types.Record:
		return o, true
	default:
		return nil, false
	}
}

// convertDynamic converts a decoded JSON value to t.
// Returns an invalid Value for nulls and unconvertible input.
func convertDynamic(raw any, t reflect.Type) reflect.Value {
	if raw == nil {
		return reflect.Value{}
	}
	switch {
	case t == timeType:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(ts)
	case t == scalarTypes["duration"]:
		switch v := raw.(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return reflect.Value{}
			}
			return reflect.ValueOf(d)
		default:
			n, ok := toInt64(raw)
			if !ok {
				return reflect.Value{}
			}
			return reflect.ValueOf(time.Duration(n))
		}
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}
		}
		out.SetString(s)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return reflect.Value{}
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, ok := toInt64(raw)
		if !ok || out.OverflowInt(n) {
			return reflect.Value{}
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint64:
		n, ok := toUint64(raw)
		if !ok || out.OverflowUint(n) {
			return reflect.Value{}
		}
		out.SetUint(n)
	case reflect.Float64:
		n, ok := toFloat64(raw)
		if !ok {
			return reflect.Value{}
		}
		out.SetFloat(n)
	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok {
			return reflect.Value{}
		}
		out = reflect.MakeSlice(t, 0, len(items))
		for _, item := range items {
			ev := convertDynamic(item, t.Elem())
			if !ev.IsValid() {
				return reflect.Value{}
			}
			out = reflect.Append(out, ev)
		}
	case reflect.Map:
		obj, ok := asObject(raw)
		if !ok {
			return reflect.Value{}
		}
		out = reflect.MakeMapWithSize(t, len(obj))
		for k, item := range obj {
			ev := convertDynamic(item, t.Elem())
			if !ev.IsValid() {
				return reflect.Value{}
			}
			out.SetMapIndex(reflect.ValueOf(k), ev)
		}
	default:
		return reflect.Value{}
	}
	return out
}

// toFloat64 converts JSON-decoded numbers to float64.
// Handles float64 (encoding/json), json.Number, and native ints.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// toInt64 converts a JSON-decoded whole number to int64.
// ok is false for fractions and for values outside the int64 range.
// json.Number integers keep full precision.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := toFloat64(v)
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
	if !ok || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// toUint64 converts a JSON-decoded whole number to uint64.
// ok is false for negatives, fractions and values of 2^64 or more.
func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case json.Number:
		if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
			return u, true
		}
	}
	f, ok := toFloat64(v)
	if !ok || f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
		return 0, false
	}
	return uint64(f), true
}
