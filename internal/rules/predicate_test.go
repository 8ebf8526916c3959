// internal/rules/predicate_test.go
package rules

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/solatis/ruleset/internal/types"
)

type level int

const (
	levelLow level = iota
	levelMid
	levelHigh
)

func (l *level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Low":
		*l = levelLow
	case "Mid":
		*l = levelMid
	case "High":
		*l = levelHigh
	default:
		return fmt.Errorf("unknown level %q", text)
	}
	return nil
}

type box struct {
	X any
}

type point struct {
	X, Y int
}

type widget struct {
	Str      string `json:"str"`
	Name     string
	Nick     *string
	Num      int
	Num2     int
	Pick     int
	Small    int8
	Ptr      *int
	Ptr2     *int
	Amount   float64
	Flag     bool
	Level    level
	When     time.Time
	Wait     time.Duration
	Tags     []string
	Ints     []int
	Other    []int
	Disjoint []int
	Dict     map[string]string
	Multi    map[string][]string
	Box      box
	Box2     box
	Pair     [2]any
	Pair2    [2]any
	Spot     point
	Spot2    point
}

func sampleWidget() widget {
	seven := 7
	return widget{
		Str:      "correct",
		Name:     "correct",
		Num:      5,
		Num2:     5,
		Pick:     2,
		Small:    3,
		Ptr:      &seven,
		Amount:   2.5,
		Flag:     true,
		Level:    levelMid,
		When:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Wait:     90 * time.Second,
		Tags:     []string{"a", "b"},
		Ints:     []int{1, 2},
		Other:    []int{2, 3},
		Disjoint: []int{9},
		Dict:     map[string]string{"key": "value"},
		Multi:    map[string][]string{"env": {"prod", "stage"}},
	}
}

func newWidgetCompiler(t *testing.T, opts ...Option) *Compiler[widget] {
	t.Helper()
	desc, err := NewReflectDescriptor[widget]()
	if err != nil {
		t.Fatalf("NewReflectDescriptor() error = %v, want nil", err)
	}
	return NewCompiler[widget](desc, opts...)
}

func cond(property string, op types.Operator, value string) types.Condition {
	return types.Condition{Property: property, Operator: op, Value: value}
}

func TestPredicate_Categories(t *testing.T) {
	c := newWidgetCompiler(t)

	tests := []struct {
		name   string
		cond   types.Condition
		mutate func(*widget)
		want   bool
	}{
		// Direct
		{name: "equal string match", cond: cond("Str", types.OpEqual, "correct"), want: true},
		{name: "equal string mismatch", cond: cond("Str", types.OpEqual, "wrong"), want: false},
		{name: "equal via json name", cond: cond("str", types.OpEqual, "correct"), want: true},
		{name: "not equal", cond: cond("Str", types.OpNotEqual, "wrong"), want: true},
		{name: "string keeps whitespace", cond: cond("Str", types.OpEqual, " correct"), want: false},
		{name: "greater than", cond: cond("Num", types.OpGreaterThan, "4"), want: true},
		{name: "less than equal bound", cond: cond("Num", types.OpLessThan, "5"), want: false},
		{name: "less than or equal", cond: cond("Num", types.OpLessThanOrEqual, "5"), want: true},
		{name: "greater than or equal", cond: cond("Num", types.OpGreaterThanOrEqual, "6"), want: false},
		{name: "int literal trimmed", cond: cond("Num", types.OpEqual, " 5 "), want: true},
		{name: "float", cond: cond("Amount", types.OpLessThan, "3.0"), want: true},
		{name: "bool", cond: cond("Flag", types.OpEqual, "true"), want: true},
		{name: "enum by name", cond: cond("Level", types.OpEqual, "Mid"), want: true},
		{name: "enum ordering", cond: cond("Level", types.OpGreaterThan, "Low"), want: true},
		{name: "time", cond: cond("When", types.OpGreaterThan, "2023-12-31T00:00:00Z"), want: true},
		{name: "duration", cond: cond("Wait", types.OpEqual, "1m30s"), want: true},
		{name: "pointer value", cond: cond("Ptr", types.OpEqual, "7"), want: true},
		{name: "null equal", cond: cond("Ptr", types.OpEqual, "7"), mutate: func(w *widget) { w.Ptr = nil }, want: false},
		{name: "null not equal", cond: cond("Ptr", types.OpNotEqual, "7"), mutate: func(w *widget) { w.Ptr = nil }, want: true},
		{name: "null ordering", cond: cond("Ptr", types.OpGreaterThan, "1"), mutate: func(w *widget) { w.Ptr = nil }, want: false},

		// String methods
		{name: "starts with", cond: cond("Str", types.OpStartsWith, "cor"), want: true},
		{name: "ends with", cond: cond("Str", types.OpEndsWith, "ect"), want: true},
		{name: "string contains", cond: cond("Str", types.OpStringContains, "rrec"), want: true},
		{name: "is match", cond: cond("Str", types.OpIsMatch, "^c.*t$"), want: true},
		{name: "is match miss", cond: cond("Str", types.OpIsMatch, "^x"), want: false},
		{name: "null string method", cond: cond("Nick", types.OpStartsWith, "a"), want: false},

		// Enumerable
		{name: "contains", cond: cond("Tags", types.OpContains, "a"), want: true},
		{name: "contains miss", cond: cond("Tags", types.OpContains, "z"), want: false},
		{name: "not contains", cond: cond("Tags", types.OpNotContains, "z"), want: true},
		{name: "overlaps", cond: cond("Ints", types.OpOverlaps, "5, 2"), want: true},
		{name: "overlaps miss", cond: cond("Ints", types.OpOverlaps, "5,6"), want: false},
		{name: "not overlaps", cond: cond("Ints", types.OpNotOverlaps, "5,6"), want: true},
		{name: "overlaps empty literal", cond: cond("Tags", types.OpOverlaps, ""), want: false},
		{name: "null contains", cond: cond("Tags", types.OpContains, "a"), mutate: func(w *widget) { w.Tags = nil }, want: false},
		{name: "null not contains", cond: cond("Tags", types.OpNotContains, "a"), mutate: func(w *widget) { w.Tags = nil }, want: true},
		{name: "null overlaps", cond: cond("Tags", types.OpOverlaps, "a,b"), mutate: func(w *widget) { w.Tags = nil }, want: false},
		{name: "null not overlaps", cond: cond("Tags", types.OpNotOverlaps, "a,b"), mutate: func(w *widget) { w.Tags = nil }, want: true},

		// Inverse enumerable
		{name: "is contained", cond: cond("Num", types.OpIsContained, "1,5,9"), want: true},
		{name: "is contained miss", cond: cond("Num", types.OpIsContained, "1,2"), want: false},
		{name: "is not contained", cond: cond("Num", types.OpIsNotContained, "1,2"), want: true},
		{name: "is contained empty list", cond: cond("Num", types.OpIsContained, ""), want: false},
		{name: "is not contained empty list", cond: cond("Num", types.OpIsNotContained, ""), want: true},
		{name: "null is contained", cond: cond("Ptr", types.OpIsContained, "7"), mutate: func(w *widget) { w.Ptr = nil }, want: false},
		{name: "null is not contained", cond: cond("Ptr", types.OpIsNotContained, "7"), mutate: func(w *widget) { w.Ptr = nil }, want: true},

		// Inner direct
		{name: "inner equal string", cond: cond("Str", types.OpInnerEqual, "Name"), want: true},
		{name: "inner equal int", cond: cond("Num", types.OpInnerEqual, "Num2"), want: true},
		{name: "inner equal plain struct match", cond: cond("Spot", types.OpInnerEqual, "Spot2"), want: true},
		{name: "inner equal plain struct", cond: cond("Spot", types.OpInnerEqual, "Spot2"), mutate: func(w *widget) { w.Spot.X = 1 }, want: false},
		{name: "inner less than", cond: cond("Num", types.OpInnerLessThan, "Num2"), want: false},
		{name: "inner less than after change", cond: cond("Num", types.OpInnerLessThan, "Num2"), mutate: func(w *widget) { w.Num2 = 6 }, want: true},
		{name: "inner equal both null", cond: cond("Ptr", types.OpInnerEqual, "Ptr2"), mutate: func(w *widget) { w.Ptr = nil }, want: true},
		{name: "inner equal one null", cond: cond("Ptr", types.OpInnerEqual, "Ptr2"), want: false},
		{name: "inner not equal one null", cond: cond("Ptr", types.OpInnerNotEqual, "Ptr2"), want: true},
		{name: "inner ordering null", cond: cond("Ptr", types.OpInnerGreaterThan, "Ptr2"), want: false},

		// Inner enumerable
		{name: "inner contains", cond: cond("Ints", types.OpInnerContains, "Pick"), want: true},
		{name: "inner contains miss", cond: cond("Ints", types.OpInnerContains, "Num"), want: false},
		{name: "inner not contains", cond: cond("Ints", types.OpInnerNotContains, "Num"), want: true},
		{name: "inner contains null sequence", cond: cond("Ints", types.OpInnerContains, "Pick"), mutate: func(w *widget) { w.Ints = nil }, want: false},
		{name: "inner not contains null sequence", cond: cond("Ints", types.OpInnerNotContains, "Pick"), mutate: func(w *widget) { w.Ints = nil }, want: true},

		// Inner cross enumerable
		{name: "inner overlaps", cond: cond("Ints", types.OpInnerOverlaps, "Other"), want: true},
		{name: "inner overlaps disjoint", cond: cond("Ints", types.OpInnerOverlaps, "Disjoint"), want: false},
		{name: "inner not overlaps disjoint", cond: cond("Ints", types.OpInnerNotOverlaps, "Disjoint"), want: true},
		{name: "inner overlaps right null", cond: cond("Ints", types.OpInnerOverlaps, "Other"), mutate: func(w *widget) { w.Other = nil }, want: false},
		{name: "inner overlaps both null", cond: cond("Ints", types.OpInnerOverlaps, "Other"), mutate: func(w *widget) { w.Ints, w.Other = nil, nil }, want: false},
		{name: "inner not overlaps null", cond: cond("Ints", types.OpInnerNotOverlaps, "Other"), mutate: func(w *widget) { w.Other = nil }, want: true},

		// Key value
		{name: "contains key", cond: cond("Dict", types.OpContainsKey, "key"), want: true},
		{name: "contains key miss", cond: cond("Dict", types.OpContainsKey, "nope"), want: false},
		{name: "not contains key", cond: cond("Dict", types.OpNotContainsKey, "nope"), want: true},
		{name: "contains value", cond: cond("Dict", types.OpContainsValue, "value"), want: true},
		{name: "not contains value", cond: cond("Dict", types.OpNotContainsValue, "value"), want: false},
		{name: "key contains value", cond: cond("Dict[key]", types.OpKeyContainsValue, "value"), want: true},
		{name: "key contains value other key", cond: cond("Dict[key]", types.OpKeyContainsValue, "value"),
			mutate: func(w *widget) { w.Dict = map[string]string{"key2": "value"} }, want: false},
		{name: "key contains value other value", cond: cond("Dict[key]", types.OpKeyContainsValue, "value"),
			mutate: func(w *widget) { w.Dict = map[string]string{"key": "othervalue"} }, want: false},
		{name: "not key contains value", cond: cond("Dict[key]", types.OpNotKeyContainsValue, "othervalue"), want: true},
		{name: "key contains value in list", cond: cond("Multi[env]", types.OpKeyContainsValue, "prod"), want: true},
		{name: "key contains value not in list", cond: cond("Multi[env]", types.OpKeyContainsValue, "dev"), want: false},
		{name: "null map contains key", cond: cond("Dict", types.OpContainsKey, "key"), mutate: func(w *widget) { w.Dict = nil }, want: false},
		{name: "null map not contains key", cond: cond("Dict", types.OpNotContainsKey, "key"), mutate: func(w *widget) { w.Dict = nil }, want: true},
		{name: "null map key contains value", cond: cond("Dict[key]", types.OpKeyContainsValue, "value"), mutate: func(w *widget) { w.Dict = nil }, want: false},
		{name: "null map not key contains value", cond: cond("Dict[key]", types.OpNotKeyContainsValue, "value"), mutate: func(w *widget) { w.Dict = nil }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := c.CompileCondition(tt.cond)
			if err != nil {
				t.Fatalf("CompileCondition(%s) error = %v, want nil", tt.cond, err)
			}
			item := sampleWidget()
			if tt.mutate != nil {
				tt.mutate(&item)
			}
			if got := cc.Test(item); got != tt.want {
				t.Errorf("Test(%s) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestPredicate_CompileFailures(t *testing.T) {
	c := newWidgetCompiler(t, WithMaxPatternLength(16))

	tests := []struct {
		name    string
		cond    types.Condition
		wantErr error
	}{
		{name: "unknown property", cond: cond("Missing", types.OpEqual, "x"), wantErr: types.ErrPropertyNotFound},
		{name: "unknown inner property", cond: cond("Str", types.OpInnerEqual, "Missing"), wantErr: types.ErrPropertyNotFound},
		{name: "inner types differ", cond: cond("Str", types.OpInnerEqual, "Num"), wantErr: types.ErrTypeMismatch},
		{name: "inner pointer vs value", cond: cond("Ptr", types.OpInnerEqual, "Num"), wantErr: types.ErrTypeMismatch},
		{name: "inner equal struct with interface field", cond: cond("Box", types.OpInnerEqual, "Box2"), wantErr: types.ErrTypeMismatch},
		{name: "inner not equal array of interfaces", cond: cond("Pair", types.OpInnerNotEqual, "Pair2"), wantErr: types.ErrTypeMismatch},
		{name: "inner contains element type", cond: cond("Ints", types.OpInnerContains, "Str"), wantErr: types.ErrTypeMismatch},
		{name: "inner overlaps sequence types", cond: cond("Ints", types.OpInnerOverlaps, "Tags"), wantErr: types.ErrTypeMismatch},
		{name: "bad int literal", cond: cond("Num", types.OpEqual, "abc"), wantErr: types.ErrCoercionFailed},
		{name: "int8 overflow", cond: cond("Small", types.OpEqual, "300"), wantErr: types.ErrCoercionFailed},
		{name: "bad enum name", cond: cond("Level", types.OpEqual, "Bogus"), wantErr: types.ErrCoercionFailed},
		{name: "bad duration", cond: cond("Wait", types.OpEqual, "soon"), wantErr: types.ErrCoercionFailed},
		{name: "bad overlaps token", cond: cond("Ints", types.OpOverlaps, "1,x"), wantErr: types.ErrCoercionFailed},
		{name: "bad regex", cond: cond("Str", types.OpIsMatch, "("), wantErr: types.ErrCoercionFailed},
		{name: "regex too long", cond: cond("Str", types.OpIsMatch, strings.Repeat("a", 17)), wantErr: types.ErrPatternTooLong},
		{name: "string method on int", cond: cond("Num", types.OpStartsWith, "1"), wantErr: types.ErrTypeMismatch},
		{name: "ordering on bool", cond: cond("Flag", types.OpLessThan, "true"), wantErr: types.ErrTypeMismatch},
		{name: "contains on scalar", cond: cond("Str", types.OpContains, "x"), wantErr: types.ErrTypeMismatch},
		{name: "is contained on slice", cond: cond("Tags", types.OpIsContained, "a"), wantErr: types.ErrTypeMismatch},
		{name: "key op on slice", cond: cond("Tags", types.OpContainsKey, "a"), wantErr: types.ErrTypeMismatch},
		{name: "keyed op without key", cond: cond("Dict", types.OpKeyContainsValue, "value"), wantErr: types.ErrInvalidAddress},
		{name: "key on unkeyed op", cond: cond("Dict[key]", types.OpContainsKey, "key"), wantErr: types.ErrInvalidAddress},
		{name: "empty key", cond: cond("Dict[]", types.OpKeyContainsValue, "value"), wantErr: types.ErrInvalidAddress},
		{name: "unsupported operator", cond: cond("Str", types.OpUnsupported, "x"), wantErr: types.ErrUnsupportedOperator},
		{name: "out of range operator", cond: cond("Str", types.Operator(999), "x"), wantErr: types.ErrUnsupportedOperator},
		{name: "too many literals", cond: cond("Ints", types.OpOverlaps, strings.Repeat("1,", types.MaxLiteralSetSize)+"1"), wantErr: types.ErrTooManyLiterals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CompileCondition(tt.cond)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CompileCondition(%s) error = %v, want %v", tt.cond, err, tt.wantErr)
			}
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("CompileCondition(%s) error type = %T, want *CompileError", tt.cond, err)
			}
			if ce.Condition == nil || *ce.Condition != tt.cond {
				t.Errorf("CompileError.Condition = %v, want %v", ce.Condition, tt.cond)
			}
		})
	}
}

func TestPredicate_MatchInputBound(t *testing.T) {
	c := newWidgetCompiler(t, WithMaxMatchInput(8))
	cc, err := c.CompileCondition(cond("Str", types.OpIsMatch, "a+"))
	if err != nil {
		t.Fatalf("CompileCondition() error = %v, want nil", err)
	}

	item := sampleWidget()
	item.Str = "aaaa"
	if !cc.Test(item) {
		t.Errorf("Test(%q) = false, want true", item.Str)
	}
	item.Str = strings.Repeat("a", 9)
	if cc.Test(item) {
		t.Errorf("Test(len %d) = true, want false for input over bound", len(item.Str))
	}
}

func TestPredicate_PointerItem(t *testing.T) {
	desc, err := NewReflectDescriptor[*widget]()
	if err != nil {
		t.Fatalf("NewReflectDescriptor() error = %v, want nil", err)
	}
	c := NewCompiler[*widget](desc)
	cc, err := c.CompileCondition(cond("Str", types.OpEqual, "correct"))
	if err != nil {
		t.Fatalf("CompileCondition() error = %v, want nil", err)
	}

	item := sampleWidget()
	if !cc.Test(&item) {
		t.Errorf("Test(&item) = false, want true")
	}
	if cc.Test(nil) {
		t.Errorf("Test(nil) = true, want false")
	}

	neg, err := c.CompileCondition(cond("Str", types.OpNotEqual, "correct"))
	if err != nil {
		t.Fatalf("CompileCondition() error = %v, want nil", err)
	}
	if !neg.Test(nil) {
		t.Errorf("NotEqual Test(nil) = false, want true")
	}
}
