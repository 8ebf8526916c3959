// internal/rules/operators_test.go
package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/ruleset/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		op   types.Operator
		want Category
	}{
		{types.OpEqual, CategoryDirect},
		{types.OpGreaterThanOrEqual, CategoryDirect},
		{types.OpStartsWith, CategoryStringMethod},
		{types.OpIsMatch, CategoryStringMethod},
		{types.OpContains, CategoryEnumerable},
		{types.OpNotOverlaps, CategoryEnumerable},
		{types.OpIsContained, CategoryInverseEnumerable},
		{types.OpIsNotContained, CategoryInverseEnumerable},
		{types.OpInnerEqual, CategoryInnerDirect},
		{types.OpInnerLessThanOrEqual, CategoryInnerDirect},
		{types.OpInnerContains, CategoryInnerEnumerable},
		{types.OpInnerNotContains, CategoryInnerEnumerable},
		{types.OpInnerOverlaps, CategoryInnerCrossEnumerable},
		{types.OpInnerNotOverlaps, CategoryInnerCrossEnumerable},
		{types.OpContainsKey, CategoryKeyValue},
		{types.OpNotKeyContainsValue, CategoryKeyValue},
		{types.OpUnsupported, CategoryUnsupported},
		{types.Operator(-1), CategoryUnsupported},
		{types.Operator(1 << 20), CategoryUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			if got := Classify(tt.op); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.op, got, tt.want)
			}
		})
	}
}

func TestClassify_ParsedTokens(t *testing.T) {
	tests := []struct {
		token string
		want  Category
	}{
		{"equal", CategoryDirect},
		{">=", CategoryDirect},
		{"ISMATCH", CategoryStringMethod},
		{"InnerOverlaps", CategoryInnerCrossEnumerable},
		{"keycontainsvalue", CategoryKeyValue},
		{"Between", CategoryUnsupported},
		{"", CategoryUnsupported},
	}

	for _, tt := range tests {
		if got := Classify(types.ParseOperator(tt.token)); got != tt.want {
			t.Errorf("Classify(ParseOperator(%q)) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

// Property-based test: classification is total
func TestClassify_PropertyTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every operator value classifies without panicking", prop.ForAll(
		func(n int) bool {
			c := Classify(types.Operator(n))
			return c >= CategoryUnsupported && c <= CategoryKeyValue
		},
		gen.IntRange(-1000, 1000),
	))

	properties.Property("every token classifies without panicking", prop.ForAll(
		func(token string) bool {
			c := Classify(types.ParseOperator(token))
			return c.String() != ""
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestNegated(t *testing.T) {
	for _, op := range []types.Operator{types.OpNotEqual, types.OpNotContains, types.OpNotOverlaps,
		types.OpIsNotContained, types.OpInnerNotEqual, types.OpInnerNotContains, types.OpInnerNotOverlaps,
		types.OpNotContainsKey, types.OpNotContainsValue, types.OpNotKeyContainsValue} {
		if !negated(op) {
			t.Errorf("negated(%v) = false, want true", op)
		}
	}
	for _, op := range []types.Operator{types.OpEqual, types.OpLessThan, types.OpContains, types.OpIsContained, types.OpKeyContainsValue} {
		if negated(op) {
			t.Errorf("negated(%v) = true, want false", op)
		}
	}
}
