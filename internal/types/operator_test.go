package types

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseOperator(t *testing.T) {
	tests := []struct {
		token string
		want  Operator
	}{
		{"Equal", OpEqual},
		{"equal", OpEqual},
		{"  NOTEQUAL ", OpNotEqual},
		{"=", OpEqual},
		{"==", OpEqual},
		{"!=", OpNotEqual},
		{"<>", OpNotEqual},
		{"<", OpLessThan},
		{"<=", OpLessThanOrEqual},
		{">", OpGreaterThan},
		{">=", OpGreaterThanOrEqual},
		{"IsMatch", OpIsMatch},
		{"InnerGreaterThanOrEqual", OpInnerGreaterThanOrEqual},
		{"NotKeyContainsValue", OpNotKeyContainsValue},
		{"Unsupported", OpUnsupported},
		{"Between", OpUnsupported},
		{"", OpUnsupported},
	}

	for _, tt := range tests {
		if got := ParseOperator(tt.token); got != tt.want {
			t.Errorf("ParseOperator(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestOperator_StringRoundTrip(t *testing.T) {
	for op := OpEqual; op <= OpNotKeyContainsValue; op++ {
		if got := ParseOperator(op.String()); got != op {
			t.Errorf("ParseOperator(%q) = %v, want %v", op.String(), got, op)
		}
	}
	if got := Operator(-3).String(); got != "Unsupported" {
		t.Errorf("Operator(-3).String() = %q, want Unsupported", got)
	}
}

func TestCondition_JSONUnknownOperator(t *testing.T) {
	data := `{"name":"c","groups":[{"label":"g","conditions":[
		{"property":"A","operator":"Equal","value":"1","code":"E1"},
		{"property":"B","operator":"Sometimes","value":"2"}
	]}]}`

	var cat Catalog
	if err := json.Unmarshal([]byte(data), &cat); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, want nil", err)
	}
	conds := cat.Groups[0].Conditions
	if conds[0].Operator != OpEqual || conds[0].Code != "E1" {
		t.Errorf("conditions[0] = %+v, want Equal with code E1", conds[0])
	}
	if conds[1].Operator != OpUnsupported || conds[1].Code != "" {
		t.Errorf("conditions[1] = %+v, want Unsupported with empty code", conds[1])
	}

	out, err := json.Marshal(conds[0])
	if err != nil {
		t.Fatalf("json.Marshal() error = %v, want nil", err)
	}
	want := `{"property":"A","operator":"Equal","value":"1","code":"E1"}`
	if string(out) != want {
		t.Errorf("json.Marshal() = %s, want %s", out, want)
	}
}

// Property-based test: parsing never fails
func TestParseOperator_PropertyTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("any token parses to a known operator", prop.ForAll(
		func(token string) bool {
			op := ParseOperator(token)
			return op >= OpUnsupported && op <= OpNotKeyContainsValue
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
