// internal/rules/predicate.go
package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Predicate construction.
 *
 * Turns one condition into a closure over resolved accessor(s) and
 * coerced literal(s). All type resolution, literal parsing and operator
 * validation happens here, at compile time; the returned Predicate does
 * no parsing and cannot fail.
 *
 * Null policy per category:
 *   - direct: Equal false, NotEqual true, orderings false
 *   - string-method: false
 *   - enumerable: null sequence has no elements; negated forms are true
 *   - inverse-enumerable: empty literal list never contains; null element
 *     is never contained
 *   - inner-direct: equal only when both are null; orderings false
 *   - inner-enumerable / inner-cross-enumerable: as enumerable
 *   - key-value: null map contains nothing; negated forms are true
 *
 * Inner operators require the two properties to have identical static
 * types (element type for InnerContains). This check is never deferred to
 * evaluation.
 */

// Predicate is a compiled boolean test over T.
type Predicate[T any] func(item T) bool

type builder[T any] struct {
	desc             Descriptor[T]
	maxPatternLength int
	maxMatchInput    int
}

func (b *builder[T]) build(cond types.Condition) (Predicate[T], error) {
	switch Classify(cond.Operator) {
	case CategoryDirect:
		return b.direct(cond)
	case CategoryStringMethod:
		return b.stringMethod(cond)
	case CategoryEnumerable:
		return b.enumerable(cond)
	case CategoryInverseEnumerable:
		return b.inverseEnumerable(cond)
	case CategoryInnerDirect:
		return b.innerDirect(cond)
	case CategoryInnerEnumerable:
		return b.innerEnumerable(cond)
	case CategoryInnerCrossEnumerable:
		return b.innerCrossEnumerable(cond)
	case CategoryKeyValue:
		return b.keyValue(cond)
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedOperator, cond.Operator)
	}
}

func (b *builder[T]) direct(cond types.Condition) (Predicate[T], error) {
	prop, err := b.desc.Resolve(cond.Property)
	if err != nil {
		return nil, err
	}
	base := baseType(prop.Type)
	test, err := comparisonFor(cond.Operator, base)
	if err != nil {
		return nil, err
	}
	lit, err := Coerce(cond.Value, prop.Type)
	if err != nil {
		return nil, err
	}

	onNull := cond.Operator == types.OpNotEqual
	get := prop.Get
	return func(item T) bool {
		v, ok := indirect(get(item))
		if !ok {
			return onNull
		}
		return test(v, lit)
	}, nil
}

func (b *builder[T]) stringMethod(cond types.Condition) (Predicate[T], error) {
	prop, err := b.desc.Resolve(cond.Property)
	if err != nil {
		return nil, err
	}
	if baseType(prop.Type).Kind() != reflect.String {
		return nil, fmt.Errorf("%w: %s requires a string property, %s is %s",
			types.ErrTypeMismatch, cond.Operator, prop.Name, prop.Type)
	}

	var match func(string) bool
	lit := cond.Value
	switch cond.Operator {
	case types.OpStartsWith:
		match = func(s string) bool { return strings.HasPrefix(s, lit) }
	case types.OpEndsWith:
		match = func(s string) bool { return strings.HasSuffix(s, lit) }
	case types.OpStringContains:
		match = func(s string) bool { return strings.Contains(s, lit) }
	case types.OpIsMatch:
		if len(lit) > b.maxPatternLength {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", types.ErrPatternTooLong, len(lit), b.maxPatternLength)
		}
		// RE2: matching is linear in the input, no catastrophic backtracking
		re, err := regexp.Compile(lit)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", types.ErrCoercionFailed, lit, err)
		}
		maxInput := b.maxMatchInput
		match = func(s string) bool {
			if len(s) > maxInput {
				return false
			}
			return re.MatchString(s)
		}
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedOperator, cond.Operator)
	}

	get := prop.Get
	return func(item T) bool {
		v, ok := indirect(get(item))
		if !ok {
			return false
		}
		return match(v.String())
	}, nil
}

// sequenceProperty resolves name and checks it is a slice or array with a comparable element.
func (b *builder[T]) sequenceProperty(name string) (Property[T], reflect.Type, equaler, error) {
	prop, err := b.desc.Resolve(name)
	if err != nil {
		return Property[T]{}, nil, nil, err
	}
	seq := baseType(prop.Type)
	if !isSequence(seq) {
		return Property[T]{}, nil, nil, fmt.Errorf("%w: %s is %s, not a sequence", types.ErrTypeMismatch, prop.Name, prop.Type)
	}
	eq, ok := equalityFor(baseType(seq.Elem()))
	if !ok {
		return Property[T]{}, nil, nil, fmt.Errorf("%w: elements of %s do not support equality", types.ErrTypeMismatch, prop.Type)
	}
	return prop, seq.Elem(), eq, nil
}

func (b *builder[T]) enumerable(cond types.Condition) (Predicate[T], error) {
	prop, elem, eq, err := b.sequenceProperty(cond.Property)
	if err != nil {
		return nil, err
	}
	negate := negated(cond.Operator)
	get := prop.Get

	switch cond.Operator {
	case types.OpContains, types.OpNotContains:
		lit, err := Coerce(cond.Value, elem)
		if err != nil {
			return nil, err
		}
		return func(item T) bool {
			seq, ok := sequenceOf(get(item))
			if !ok {
				return negate
			}
			return containsValue(seq, lit, eq) != negate
		}, nil

	case types.OpOverlaps, types.OpNotOverlaps:
		lits, err := CoerceList(cond.Value, elem)
		if err != nil {
			return nil, err
		}
		return func(item T) bool {
			seq, ok := sequenceOf(get(item))
			if !ok {
				return negate
			}
			return intersectsLiterals(seq, lits, eq) != negate
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedOperator, cond.Operator)
	}
}

func (b *builder[T]) inverseEnumerable(cond types.Condition) (Predicate[T], error) {
	prop, err := b.desc.Resolve(cond.Property)
	if err != nil {
		return nil, err
	}
	base := baseType(prop.Type)
	eq, ok := equalityFor(base)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support equality", types.ErrTypeMismatch, prop.Type)
	}
	lits, err := CoerceList(cond.Value, prop.Type)
	if err != nil {
		return nil, err
	}

	negate := negated(cond.Operator)
	get := prop.Get
	return func(item T) bool {
		v, ok := indirect(get(item))
		if !ok {
			return negate
		}
		for _, lit := range lits {
			if eq(v, lit) {
				return !negate
			}
		}
		return negate
	}, nil
}

// propertyPair resolves the property and the property named by the condition value.
func (b *builder[T]) propertyPair(cond types.Condition) (Property[T], Property[T], error) {
	left, err := b.desc.Resolve(cond.Property)
	if err != nil {
		return Property[T]{}, Property[T]{}, err
	}
	right, err := b.desc.Resolve(cond.Value)
	if err != nil {
		return Property[T]{}, Property[T]{}, err
	}
	return left, right, nil
}

func (b *builder[T]) innerDirect(cond types.Condition) (Predicate[T], error) {
	left, right, err := b.propertyPair(cond)
	if err != nil {
		return nil, err
	}
	if left.Type != right.Type {
		return nil, fmt.Errorf("%w: %s is %s, %s is %s",
			types.ErrTypeMismatch, left.Name, left.Type, right.Name, right.Type)
	}
	test, err := comparisonFor(cond.Operator, baseType(left.Type))
	if err != nil {
		return nil, err
	}

	op := cond.Operator
	getLeft, getRight := left.Get, right.Get
	return func(item T) bool {
		a, aok := indirect(getLeft(item))
		z, zok := indirect(getRight(item))
		if !aok || !zok {
			bothNull := !aok && !zok
			switch op {
			case types.OpInnerEqual:
				return bothNull
			case types.OpInnerNotEqual:
				return !bothNull
			default:
				return false
			}
		}
		return test(a, z)
	}, nil
}

func (b *builder[T]) innerEnumerable(cond types.Condition) (Predicate[T], error) {
	seqProp, elem, eq, err := b.sequenceProperty(cond.Property)
	if err != nil {
		return nil, err
	}
	elemProp, err := b.desc.Resolve(cond.Value)
	if err != nil {
		return nil, err
	}
	if elemProp.Type != elem {
		return nil, fmt.Errorf("%w: %s has elements of %s, %s is %s",
			types.ErrTypeMismatch, seqProp.Name, elem, elemProp.Name, elemProp.Type)
	}

	negate := negated(cond.Operator)
	getSeq, getElem := seqProp.Get, elemProp.Get
	return func(item T) bool {
		seq, ok := sequenceOf(getSeq(item))
		if !ok {
			return negate
		}
		v, ok := indirect(getElem(item))
		if !ok {
			return negate
		}
		return containsValue(seq, v, eq) != negate
	}, nil
}

func (b *builder[T]) innerCrossEnumerable(cond types.Condition) (Predicate[T], error) {
	left, _, eq, err := b.sequenceProperty(cond.Property)
	if err != nil {
		return nil, err
	}
	right, err := b.desc.Resolve(cond.Value)
	if err != nil {
		return nil, err
	}
	if left.Type != right.Type {
		return nil, fmt.Errorf("%w: %s is %s, %s is %s",
			types.ErrTypeMismatch, left.Name, left.Type, right.Name, right.Type)
	}

	negate := negated(cond.Operator)
	getLeft, getRight := left.Get, right.Get
	return func(item T) bool {
		a, aok := sequenceOf(getLeft(item))
		z, zok := sequenceOf(getRight(item))
		if !aok || !zok {
			return negate
		}
		return intersects(a, z, eq) != negate
	}, nil
}

func (b *builder[T]) keyValue(cond types.Condition) (Predicate[T], error) {
	name, key, hasKey, err := parseAddress(cond.Property)
	if err != nil {
		return nil, err
	}
	keyed := cond.Operator == types.OpKeyContainsValue || cond.Operator == types.OpNotKeyContainsValue
	if keyed != hasKey {
		if keyed {
			return nil, fmt.Errorf("%w: %s needs a Prop[key] address, got %q", types.ErrInvalidAddress, cond.Operator, cond.Property)
		}
		return nil, fmt.Errorf("%w: %s does not take a key in %q", types.ErrInvalidAddress, cond.Operator, cond.Property)
	}

	prop, err := b.desc.Resolve(name)
	if err != nil {
		return nil, err
	}
	mt := baseType(prop.Type)
	if mt.Kind() != reflect.Map || mt.Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: %s is %s, not a string-keyed map", types.ErrTypeMismatch, prop.Name, prop.Type)
	}

	negate := negated(cond.Operator)
	get := prop.Get

	switch cond.Operator {
	case types.OpContainsKey, types.OpNotContainsKey:
		k := reflect.ValueOf(cond.Value).Convert(mt.Key())
		return func(item T) bool {
			m, ok := mapOf(get(item))
			if !ok {
				return negate
			}
			return m.MapIndex(k).IsValid() != negate
		}, nil

	case types.OpContainsValue, types.OpNotContainsValue:
		match, err := valueMatcher(mt.Elem(), cond.Value)
		if err != nil {
			return nil, err
		}
		return func(item T) bool {
			m, ok := mapOf(get(item))
			if !ok {
				return negate
			}
			iter := m.MapRange()
			for iter.Next() {
				if match(iter.Value()) {
					return !negate
				}
			}
			return negate
		}, nil

	default:
		k := reflect.ValueOf(key).Convert(mt.Key())
		match, err := valueMatcher(mt.Elem(), cond.Value)
		if err != nil {
			return nil, err
		}
		return func(item T) bool {
			m, ok := mapOf(get(item))
			if !ok {
				return negate
			}
			return match(m.MapIndex(k)) != negate
		}, nil
	}
}

// valueMatcher tests a map value against literal.
// Scalar values compare for equality; sequence values test membership.
func valueMatcher(valueType reflect.Type, literal string) (func(reflect.Value) bool, error) {
	base := baseType(valueType)
	if isSequence(base) {
		eq, ok := equalityFor(baseType(base.Elem()))
		if !ok {
			return nil, fmt.Errorf("%w: elements of %s do not support equality", types.ErrTypeMismatch, valueType)
		}
		lit, err := Coerce(literal, base.Elem())
		if err != nil {
			return nil, err
		}
		return func(v reflect.Value) bool {
			seq, ok := sequenceOf(v)
			return ok && containsValue(seq, lit, eq)
		}, nil
	}

	eq, ok := equalityFor(base)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support equality", types.ErrTypeMismatch, valueType)
	}
	lit, err := Coerce(literal, valueType)
	if err != nil {
		return nil, err
	}
	return func(v reflect.Value) bool {
		v, ok := indirect(v)
		return ok && eq(v, lit)
	}, nil
}
