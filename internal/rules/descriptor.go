package rules

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/solatis/ruleset/internal/types"
)

// Accessor reads one property from an item.
// Returns an invalid reflect.Value when the property is absent.
type Accessor[T any] func(item T) reflect.Value

// Property is a resolved, typed property of T.
type Property[T any] struct {
	Name string
	Type reflect.Type
	Get  Accessor[T]
}

// Descriptor resolves property names on T to typed accessors.
// Resolution happens at compile time only.
type Descriptor[T any] interface {
	Resolve(name string) (Property[T], error)
}

// ReflectDescriptor resolves exported struct fields of T by Go name or json tag.
// T may be a struct or a pointer to a struct.
type ReflectDescriptor[T any] struct {
	typ    reflect.Type
	fields map[string]reflect.StructField
}

// NewReflectDescriptor indexes the visible exported fields of T.
func NewReflectDescriptor[T any]() (*ReflectDescriptor[T], error) {
	t := reflect.TypeFor[T]()
	st := baseType(t)
	if st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct type", types.ErrTypeMismatch, t)
	}

	d := &ReflectDescriptor[T]{
		typ:    t,
		fields: make(map[string]reflect.StructField),
	}
	var tagged []reflect.StructField
	for _, f := range reflect.VisibleFields(st) {
		if f.Anonymous || !f.IsExported() || !reachable(st, f.Index) {
			continue
		}
		d.fields[f.Name] = f
		tagged = append(tagged, f)
	}
	// json names never shadow Go names
	for _, f := range tagged {
		if name := jsonName(f); name != "" {
			if _, exists := d.fields[name]; !exists {
				d.fields[name] = f
			}
		}
	}
	return d, nil
}

// reachable reports whether every embedded field on the path to index is exported.
// Values read through unexported embeddings cannot be converted back to interfaces.
func reachable(st reflect.Type, index []int) bool {
	for i := 1; i < len(index); i++ {
		if !st.FieldByIndex(index[:i]).IsExported() {
			return false
		}
	}
	return true
}

func jsonName(f reflect.StructField) string {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

// Resolve implements Descriptor.
func (d *ReflectDescriptor[T]) Resolve(name string) (Property[T], error) {
	f, ok := d.fields[name]
	if !ok {
		return Property[T]{}, fmt.Errorf("%w: %q on %s", types.ErrPropertyNotFound, name, d.typ)
	}
	index := f.Index
	return Property[T]{
		Name: f.Name,
		Type: f.Type,
		Get: func(item T) reflect.Value {
			v, ok := indirect(reflect.ValueOf(&item).Elem())
			if !ok {
				return reflect.Value{}
			}
			fv, err := v.FieldByIndexErr(index)
			if err != nil {
				// nil embedded pointer on the path
				return reflect.Value{}
			}
			return fv
		},
	}, nil
}

// Properties lists the resolvable names in sorted order.
func (d *ReflectDescriptor[T]) Properties() []string {
	names := make([]string, 0, len(d.fields))
	for name := range d.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry is an explicit registration table of typed accessors.
// Use it when T is not a struct or properties are computed.
type Registry[T any] struct {
	props map[string]Property[T]
}

// NewRegistry creates an empty registry for T.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{props: make(map[string]Property[T])}
}

// Register adds a property whose static type is V.
// Re-registering a name replaces the previous accessor.
func Register[T, V any](r *Registry[T], name string, get func(T) V) {
	r.props[name] = Property[T]{
		Name: name,
		Type: reflect.TypeFor[V](),
		Get: func(item T) reflect.Value {
			v := get(item)
			return reflect.ValueOf(&v).Elem()
		},
	}
}

// Resolve implements Descriptor.
func (r *Registry[T]) Resolve(name string) (Property[T], error) {
	p, ok := r.props[name]
	if !ok {
		return Property[T]{}, fmt.Errorf("%w: %q", types.ErrPropertyNotFound, name)
	}
	return p, nil
}

// parseAddress splits "Prop[key]" into property name and key.
// Plain names return hasKey=false.
func parseAddress(address string) (name, key string, hasKey bool, err error) {
	open := strings.IndexByte(address, '[')
	if open < 0 {
		if strings.IndexByte(address, ']') >= 0 {
			return "", "", false, fmt.Errorf("%w: %q", types.ErrInvalidAddress, address)
		}
		return address, "", false, nil
	}
	if open == 0 || !strings.HasSuffix(address, "]") {
		return "", "", false, fmt.Errorf("%w: %q", types.ErrInvalidAddress, address)
	}
	key = address[open+1 : len(address)-1]
	if key == "" {
		return "", "", false, fmt.Errorf("%w: %q has an empty key", types.ErrInvalidAddress, address)
	}
	return address[:open], key, true, nil
}
