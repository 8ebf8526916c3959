// internal/rules/compile_test.go
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/solatis/ruleset/internal/types"
)

func TestCompile_SimpleCatalog(t *testing.T) {
	c := newWidgetCompiler(t)
	compiled, err := c.Compile(types.Catalog{
		Name: "simple",
		Groups: []types.Group{{
			Label:      "set1",
			Conditions: []types.Condition{{Property: "Str", Operator: types.OpEqual, Value: "correct", Code: "STR"}},
		}},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	if compiled.Name() != "simple" {
		t.Errorf("Name = %v, want %v", compiled.Name(), "simple")
	}
	if len(compiled.Groups()) != 1 {
		t.Fatalf("len(Groups) = %v, want 1", len(compiled.Groups()))
	}
	if compiled.Groups()[0].Label() != "set1" {
		t.Errorf("Label = %v, want %v", compiled.Groups()[0].Label(), "set1")
	}
	if got := compiled.Groups()[0].Conditions()[0].Code(); got != "STR" {
		t.Errorf("Code = %v, want %v", got, "STR")
	}
}

func TestCompile_DropsFailedConditionsOnly(t *testing.T) {
	c := newWidgetCompiler(t)
	compiled, err := c.Compile(types.Catalog{
		Name: "partial",
		Groups: []types.Group{{
			Label: "g",
			Conditions: []types.Condition{
				cond("Str", types.OpEqual, "correct"),
				cond("Missing", types.OpEqual, "x"),
				cond("Num", types.OpEqual, "not-a-number"),
				cond("Num", types.OpGreaterThan, "1"),
			},
		}},
	})

	if !errors.Is(err, types.ErrPropertyNotFound) {
		t.Errorf("Compile() error = %v, want to contain %v", err, types.ErrPropertyNotFound)
	}
	if !errors.Is(err, types.ErrCoercionFailed) {
		t.Errorf("Compile() error = %v, want to contain %v", err, types.ErrCoercionFailed)
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("Compile() error = %v, want multierror with 2 entries", err)
	}
	var ce *CompileError
	if !errors.As(merr.Errors[0], &ce) || ce.Catalog != "partial" || ce.Group != "g" {
		t.Errorf("first diagnostic = %v, want CompileError for catalog partial group g", merr.Errors[0])
	}

	if len(compiled.Groups()) != 1 {
		t.Fatalf("len(Groups) = %v, want 1", len(compiled.Groups()))
	}
	conds := compiled.Groups()[0].Conditions()
	if len(conds) != 2 {
		t.Fatalf("len(Conditions) = %v, want 2", len(conds))
	}
	if conds[0].Condition().Property != "Str" || conds[1].Condition().Property != "Num" {
		t.Errorf("Conditions = [%s, %s], want declared order [Str, Num]", conds[0].Condition(), conds[1].Condition())
	}
}

func TestCompile_GroupPolicy(t *testing.T) {
	c := newWidgetCompiler(t)

	tests := []struct {
		name       string
		groups     []types.Group
		wantGroups []string
		wantErr    error
	}{
		{
			name:       "empty group kept",
			groups:     []types.Group{{Label: "empty"}},
			wantGroups: []string{"empty"},
		},
		{
			name: "all failed group dropped",
			groups: []types.Group{
				{Label: "broken", Conditions: []types.Condition{cond("Missing", types.OpEqual, "x")}},
				{Label: "fine", Conditions: []types.Condition{cond("Str", types.OpEqual, "correct")}},
			},
			wantGroups: []string{"fine"},
			wantErr:    types.ErrNoUsableConditions,
		},
		{
			name: "every group dropped",
			groups: []types.Group{
				{Label: "a", Conditions: []types.Condition{cond("Str", types.OpUnsupported, "x")}},
				{Label: "b", Conditions: []types.Condition{cond("Nope", types.OpEqual, "x")}},
			},
			wantGroups: []string{},
			wantErr:    types.ErrNoUsableConditions,
		},
		{
			name:       "no groups",
			groups:     nil,
			wantGroups: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := c.Compile(types.Catalog{Name: tt.name, Groups: tt.groups})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Compile() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Compile() error = %v, want %v", err, tt.wantErr)
			}
			if compiled == nil {
				t.Fatalf("Compile() returned nil catalog")
			}
			var labels []string
			for _, g := range compiled.Groups() {
				labels = append(labels, g.Label())
			}
			if fmt.Sprint(labels) != fmt.Sprint(tt.wantGroups) {
				t.Errorf("groups = %v, want %v", labels, tt.wantGroups)
			}
			// every boundary case still evaluates
			item := sampleWidget()
			want := len(compiled.Groups()) == 0 || compiled.Groups()[0].Satisfied(item)
			if got := compiled.Satisfied(item); got != want {
				t.Errorf("Satisfied() = %v, want %v", got, want)
			}
		})
	}
}

func TestCompileGroup(t *testing.T) {
	c := newWidgetCompiler(t)

	g, ok, diag := c.CompileGroup(types.Group{Label: "x", Conditions: []types.Condition{cond("Nope", types.OpEqual, "1")}})
	if ok {
		t.Errorf("CompileGroup(all failed) ok = true, want false")
	}
	if !errors.Is(diag, types.ErrNoUsableConditions) || !errors.Is(diag, types.ErrPropertyNotFound) {
		t.Errorf("CompileGroup(all failed) diag = %v, want no-usable and property-not-found", diag)
	}
	if len(g.Conditions()) != 0 {
		t.Errorf("len(Conditions) = %v, want 0", len(g.Conditions()))
	}

	g, ok, diag = c.CompileGroup(types.Group{Label: "empty"})
	if !ok || diag != nil {
		t.Errorf("CompileGroup(empty) = (ok %v, diag %v), want (true, nil)", ok, diag)
	}
	if !g.Satisfied(sampleWidget()) {
		t.Errorf("empty group Satisfied() = false, want true")
	}
}

func TestCompile_CostOrdering(t *testing.T) {
	conds := []types.Condition{
		cond("Str", types.OpIsMatch, "^c"),
		cond("Tags", types.OpOverlaps, "a,b,c"),
		cond("Num", types.OpEqual, "5"),
	}
	group := types.Group{Label: "g", Conditions: conds}

	declared, _, _ := newWidgetCompiler(t).CompileGroup(group)
	for i, cc := range declared.Conditions() {
		if cc.Condition() != conds[i] {
			t.Errorf("declared order [%d] = %s, want %s", i, cc.Condition(), conds[i])
		}
	}

	sorted, _, _ := newWidgetCompiler(t, WithCostOrdering()).CompileGroup(group)
	got := sorted.Conditions()
	if got[0].Condition().Property != "Num" {
		t.Errorf("cheapest condition = %s, want Num equality first", got[0].Condition())
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Cost() > got[i].Cost() {
			t.Errorf("Cost[%d] = %d > Cost[%d] = %d, want ascending", i-1, got[i-1].Cost(), i, got[i].Cost())
		}
	}
}

func TestCompile_ParallelPreservesOrder(t *testing.T) {
	c := newWidgetCompiler(t, WithWorkers(8))

	var groups []types.Group
	for i := 0; i < 64; i++ {
		groups = append(groups, types.Group{
			Label:      fmt.Sprintf("g%02d", i),
			Conditions: []types.Condition{cond("Num", types.OpEqual, fmt.Sprint(i))},
		})
	}
	compiled, err := c.Compile(types.Catalog{Name: "many", Groups: groups})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if len(compiled.Groups()) != len(groups) {
		t.Fatalf("len(Groups) = %v, want %v", len(compiled.Groups()), len(groups))
	}
	for i, g := range compiled.Groups() {
		if g.Label() != groups[i].Label {
			t.Errorf("Groups[%d].Label = %v, want %v", i, g.Label(), groups[i].Label)
		}
	}

	label, ok := compiled.FirstMatching(sampleWidget())
	if !ok || label != "g05" {
		t.Errorf("FirstMatching() = (%q, %v), want (g05, true)", label, ok)
	}
}

func TestCompile_LogsDroppedConditions(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c := newWidgetCompiler(t, WithLogger(logger))

	_, _ = c.Compile(types.Catalog{
		Name: "logged",
		Groups: []types.Group{{
			Label:      "only",
			Conditions: []types.Condition{cond("Missing", types.OpEqual, "x")},
		}},
	})

	out := buf.String()
	for _, want := range []string{
		`"component":"rules"`,
		`"operation":"compile_condition"`,
		`"catalog":"logged"`,
		`"group":"only"`,
		`"property":"Missing"`,
		`"operator":"Equal"`,
		`"message":"condition dropped"`,
		`"operation":"compile_group"`,
		`"operation":"compile_catalog"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s\n%s", want, out)
		}
	}
}

func TestCompileError_Error(t *testing.T) {
	c := types.Condition{Property: "P", Operator: types.OpEqual, Value: "v"}
	err := &CompileError{Catalog: "cat", Group: "grp", Condition: &c, Err: types.ErrCoercionFailed}

	want := `catalog "cat": group "grp": condition [P Equal "v"]: literal coercion failed`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, types.ErrCoercionFailed) {
		t.Errorf("errors.Is(CompileError, ErrCoercionFailed) = false, want true")
	}
}

func TestCompiledCatalog_AccessorsReturnCopies(t *testing.T) {
	c := newWidgetCompiler(t)
	compiled, err := c.Compile(types.Catalog{
		Name:   "copies",
		Groups: []types.Group{{Label: "six", Conditions: []types.Condition{cond("Num", types.OpEqual, "6")}}},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	item := sampleWidget()

	pass, err := c.CompileCondition(cond("Num", types.OpEqual, "5"))
	if err != nil {
		t.Fatalf("CompileCondition() error = %v, want nil", err)
	}
	conds := compiled.Groups()[0].Conditions()
	conds[0] = pass
	if compiled.Satisfied(item) {
		t.Errorf("Satisfied() after editing Conditions() copy = true, want false")
	}

	groups := compiled.Groups()
	groups[0] = CompiledGroup[widget]{}
	if compiled.Satisfied(item) {
		t.Errorf("Satisfied() after editing Groups() copy = true, want false")
	}
	if got := compiled.Groups()[0].Label(); got != "six" {
		t.Errorf("Groups()[0].Label() = %q, want %q", got, "six")
	}
}
