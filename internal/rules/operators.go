// internal/rules/operators.go
package rules

import (
	"cmp"
	"fmt"
	"reflect"
	"time"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Operator classification and value comparison.
 *
 * Classify is a total function from operator token to Category. The
 * category selects the predicate construction strategy in predicate.go.
 * Unknown tokens classify as CategoryUnsupported and surface as a compile
 * failure, never as a panic.
 *
 * Comparison works on reflect.Values that have already been dereferenced
 * to the same base type (literal coerced to the property type, or two
 * properties of identical type). Equality and ordering functions are
 * selected once per condition at compile time; evaluation only calls them.
 *
 * Ordered kinds: signed/unsigned integers, floats, strings, time.Time.
 * Equality additionally covers bools and any comparable type.
 */

// Category selects how a condition is turned into a predicate.
type Category int

const (
	CategoryUnsupported Category = iota
	CategoryDirect
	CategoryStringMethod
	CategoryEnumerable
	CategoryInverseEnumerable
	CategoryInnerDirect
	CategoryInnerEnumerable
	CategoryInnerCrossEnumerable
	CategoryKeyValue
)

func (c Category) String() string {
	switch c {
	case CategoryDirect:
		return "direct"
	case CategoryStringMethod:
		return "string-method"
	case CategoryEnumerable:
		return "enumerable"
	case CategoryInverseEnumerable:
		return "inverse-enumerable"
	case CategoryInnerDirect:
		return "inner-direct"
	case CategoryInnerEnumerable:
		return "inner-enumerable"
	case CategoryInnerCrossEnumerable:
		return "inner-cross-enumerable"
	case CategoryKeyValue:
		return "key-value"
	default:
		return "unsupported"
	}
}

// Classify returns the category for op. Never panics.
func Classify(op types.Operator) Category {
	switch op {
	case types.OpEqual, types.OpNotEqual,
		types.OpLessThan, types.OpLessThanOrEqual,
		types.OpGreaterThan, types.OpGreaterThanOrEqual:
		return CategoryDirect
	case types.OpStartsWith, types.OpEndsWith, types.OpStringContains, types.OpIsMatch:
		return CategoryStringMethod
	case types.OpContains, types.OpNotContains, types.OpOverlaps, types.OpNotOverlaps:
		return CategoryEnumerable
	case types.OpIsContained, types.OpIsNotContained:
		return CategoryInverseEnumerable
	case types.OpInnerEqual, types.OpInnerNotEqual,
		types.OpInnerLessThan, types.OpInnerLessThanOrEqual,
		types.OpInnerGreaterThan, types.OpInnerGreaterThanOrEqual:
		return CategoryInnerDirect
	case types.OpInnerContains, types.OpInnerNotContains:
		return CategoryInnerEnumerable
	case types.OpInnerOverlaps, types.OpInnerNotOverlaps:
		return CategoryInnerCrossEnumerable
	case types.OpContainsKey, types.OpNotContainsKey,
		types.OpContainsValue, types.OpNotContainsValue,
		types.OpKeyContainsValue, types.OpNotKeyContainsValue:
		return CategoryKeyValue
	default:
		return CategoryUnsupported
	}
}

// negated reports whether op is the negative form of its category's test.
func negated(op types.Operator) bool {
	switch op {
	case types.OpNotEqual, types.OpInnerNotEqual,
		types.OpNotContains, types.OpNotOverlaps, types.OpIsNotContained,
		types.OpInnerNotContains, types.OpInnerNotOverlaps,
		types.OpNotContainsKey, types.OpNotContainsValue, types.OpNotKeyContainsValue:
		return true
	default:
		return false
	}
}

type equaler func(a, b reflect.Value) bool

type comparer func(a, b reflect.Value) int

var timeType = reflect.TypeFor[time.Time]()

// equalityFor returns an equality test for two values of base type t.
func equalityFor(t reflect.Type) (equaler, bool) {
	if t == timeType {
		return func(a, b reflect.Value) bool {
			return a.Interface().(time.Time).Equal(b.Interface().(time.Time))
		}, true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(a, b reflect.Value) bool { return a.Int() == b.Int() }, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(a, b reflect.Value) bool { return a.Uint() == b.Uint() }, true
	case reflect.Float32, reflect.Float64:
		return func(a, b reflect.Value) bool { return a.Float() == b.Float() }, true
	case reflect.String:
		return func(a, b reflect.Value) bool { return a.String() == b.String() }, true
	case reflect.Bool:
		return func(a, b reflect.Value) bool { return a.Bool() == b.Bool() }, true
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return nil, false
	}
	if t.Comparable() && !holdsInterface(t) {
		return func(a, b reflect.Value) bool { return a.Equal(b) }, true
	}
	return nil, false
}

// holdsInterface reports whether a struct or array type contains an
// interface, making == panic-prone on the dynamic values it may hold.
func holdsInterface(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface:
		return true
	case reflect.Array:
		return holdsInterface(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if holdsInterface(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// orderingFor returns a three-way comparison for two values of base type t.
func orderingFor(t reflect.Type) (comparer, bool) {
	if t == timeType {
		return func(a, b reflect.Value) int {
			return a.Interface().(time.Time).Compare(b.Interface().(time.Time))
		}, true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) }, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) }, true
	case reflect.Float32, reflect.Float64:
		return func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) }, true
	case reflect.String:
		return func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) }, true
	default:
		return nil, false
	}
}

// comparisonFor selects the boolean test for a direct or inner-direct operator.
// Returns ErrTypeMismatch if t does not support the comparison.
func comparisonFor(op types.Operator, t reflect.Type) (equaler, error) {
	switch op {
	case types.OpEqual, types.OpInnerEqual, types.OpNotEqual, types.OpInnerNotEqual:
		eq, ok := equalityFor(t)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not support equality", types.ErrTypeMismatch, t)
		}
		if negated(op) {
			return func(a, b reflect.Value) bool { return !eq(a, b) }, nil
		}
		return eq, nil
	}

	order, ok := orderingFor(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not ordered", types.ErrTypeMismatch, t)
	}
	switch op {
	case types.OpLessThan, types.OpInnerLessThan:
		return func(a, b reflect.Value) bool { return order(a, b) < 0 }, nil
	case types.OpLessThanOrEqual, types.OpInnerLessThanOrEqual:
		return func(a, b reflect.Value) bool { return order(a, b) <= 0 }, nil
	case types.OpGreaterThan, types.OpInnerGreaterThan:
		return func(a, b reflect.Value) bool { return order(a, b) > 0 }, nil
	case types.OpGreaterThanOrEqual, types.OpInnerGreaterThanOrEqual:
		return func(a, b reflect.Value) bool { return order(a, b) >= 0 }, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a comparison", types.ErrUnsupportedOperator, op)
	}
}

// indirect dereferences pointers and interfaces.
// ok is false when v is invalid or any level is nil (a null value).
func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() {
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface:
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		default:
			return v, true
		}
	}
	return reflect.Value{}, false
}

// sequenceOf dereferences v to a slice or array. Nil slices are null.
func sequenceOf(v reflect.Value) (reflect.Value, bool) {
	v, ok := indirect(v)
	if !ok {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Value{}, false
		}
		return v, true
	case reflect.Array:
		return v, true
	default:
		return reflect.Value{}, false
	}
}

// mapOf dereferences v to a map. Nil maps are null.
func mapOf(v reflect.Value) (reflect.Value, bool) {
	v, ok := indirect(v)
	if !ok || v.Kind() != reflect.Map || v.IsNil() {
		return reflect.Value{}, false
	}
	return v, true
}

// baseType strips pointer levels from t.
func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func isSequence(t reflect.Type) bool {
	k := t.Kind()
	return k == reflect.Slice || k == reflect.Array
}

// containsValue reports whether any non-null element of seq equals want.
func containsValue(seq, want reflect.Value, eq equaler) bool {
	for i := 0; i < seq.Len(); i++ {
		if e, ok := indirect(seq.Index(i)); ok && eq(e, want) {
			return true
		}
	}
	return false
}

// intersectsLiterals reports whether seq shares an element with lits.
func intersectsLiterals(seq reflect.Value, lits []reflect.Value, eq equaler) bool {
	for _, lit := range lits {
		if containsValue(seq, lit, eq) {
			return true
		}
	}
	return false
}

// intersects reports whether two sequences share a non-null element.
func intersects(a, b reflect.Value, eq equaler) bool {
	for i := 0; i < a.Len(); i++ {
		if e, ok := indirect(a.Index(i)); ok && containsValue(b, e, eq) {
			return true
		}
	}
	return false
}
