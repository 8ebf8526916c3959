// internal/rules/cost.go
package rules

import (
	"reflect"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Cost model for condition evaluation.
 *
 * Estimates the relative evaluation cost of a compiled condition. With
 * WithCostOrdering the compiler stable-sorts each group's conditions by
 * ascending cost, so cheap conditions short-circuit a failing group before
 * expensive ones run. Without it, declared order is kept and the cost is
 * reported only for diagnostics.
 *
 * Cost formula: lookups*CostLookup + operator_cost * type_multiplier * fanout
 *
 * Fanout is the number of element comparisons the operator may perform in
 * the worst case: literal-set size for Overlaps/IsContained, and a fixed
 * estimate for operators that walk a runtime sequence or map.
 */

// Canonical cost constants
const (
	// Operator base costs
	CostDirect         = 5
	CostOrdering       = 7
	CostStringMethod   = 10
	CostIsMatch        = 40
	CostMembership     = 8
	CostKeyLookup      = 6
	CostInnerDirect    = 6
	CostUnknownOperand = 50

	// Property lookup cost per resolved accessor
	CostLookup = 16

	// Type multipliers
	MultiplierInt    = 1
	MultiplierBool   = 1
	MultiplierFloat  = 2
	MultiplierTime   = 4
	MultiplierString = 8
	MultiplierOther  = 16

	// Assumed element count for sequences and maps read from the item
	EstimatedSequenceLength = 8
)

// CalculateConditionCost computes the cost estimate for one condition.
// t is the (primary) property type; literals is the literal-set size.
func CalculateConditionCost(op types.Operator, t reflect.Type, literals int) int {
	category := Classify(op)
	lookups := 1
	switch category {
	case CategoryInnerDirect, CategoryInnerEnumerable, CategoryInnerCrossEnumerable:
		lookups = 2
	}

	fanout := 1
	switch op {
	case types.OpOverlaps, types.OpNotOverlaps:
		fanout = max(literals, 1) * EstimatedSequenceLength
	case types.OpIsContained, types.OpIsNotContained:
		fanout = max(literals, 1)
	case types.OpContains, types.OpNotContains, types.OpInnerContains, types.OpInnerNotContains,
		types.OpContainsValue, types.OpNotContainsValue:
		fanout = EstimatedSequenceLength
	case types.OpInnerOverlaps, types.OpInnerNotOverlaps:
		fanout = EstimatedSequenceLength * EstimatedSequenceLength
	}

	return lookups*CostLookup + operatorCost(op)*typeMultiplier(t)*fanout
}

// operatorCost returns base cost for operator execution.
func operatorCost(op types.Operator) int {
	switch Classify(op) {
	case CategoryDirect:
		if op == types.OpEqual || op == types.OpNotEqual {
			return CostDirect
		}
		return CostOrdering
	case CategoryStringMethod:
		if op == types.OpIsMatch {
			return CostIsMatch
		}
		return CostStringMethod
	case CategoryEnumerable, CategoryInverseEnumerable, CategoryInnerEnumerable, CategoryInnerCrossEnumerable:
		return CostMembership
	case CategoryInnerDirect:
		return CostInnerDirect
	case CategoryKeyValue:
		return CostKeyLookup
	default:
		return CostUnknownOperand
	}
}

// typeMultiplier scales cost by comparison complexity of the element type.
func typeMultiplier(t reflect.Type) int {
	if t == nil {
		return MultiplierOther
	}
	t = baseType(t)
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		t = baseType(t.Elem())
	}
	if t == timeType {
		return MultiplierTime
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return MultiplierInt
	case reflect.Bool:
		return MultiplierBool
	case reflect.Float32, reflect.Float64:
		return MultiplierFloat
	case reflect.String:
		return MultiplierString
	default:
		return MultiplierOther
	}
}
