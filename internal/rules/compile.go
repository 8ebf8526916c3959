// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Condition, group and catalog compilation.
 *
 * Compiles types.Catalog to CompiledCatalog[T]: every condition becomes a
 * Predicate[T] bound to a resolved accessor and a coerced literal.
 *
 * Compilation workflow:
 *   1. Classify the operator and build the predicate (predicate.go)
 *   2. Drop conditions that fail; each failure is logged and collected
 *   3. Drop groups that declared conditions but kept none
 *   4. Optionally stable-sort surviving conditions by cost
 *
 * Failure policy: a bad condition never aborts its siblings. The compiled
 * catalog is always usable; the error returned by Compile is a diagnostic
 * aggregate (go-multierror) of everything dropped.
 *
 * Group policy: a group that declares zero conditions is kept and is
 * vacuously satisfied. A group whose declared conditions all failed to
 * compile is dropped, so a broken group can never silently permit every
 * item. A catalog left with no groups is still vacuously satisfied at
 * evaluation time; the compiler logs that case at warn level.
 */

// CompiledCondition pairs a predicate with its failure code.
type CompiledCondition[T any] struct {
	cond types.Condition
	code string
	cost int
	test Predicate[T]
}

// Test evaluates the condition against item.
func (c CompiledCondition[T]) Test(item T) bool {
	return c.test(item)
}

// Condition returns the declaration this condition was compiled from.
func (c CompiledCondition[T]) Condition() types.Condition { return c.cond }

// Code returns the failure code.
func (c CompiledCondition[T]) Code() string { return c.code }

// Cost returns the compile-time cost estimate.
func (c CompiledCondition[T]) Cost() int { return c.cost }

// CompiledGroup is an ordered conjunction of compiled conditions.
type CompiledGroup[T any] struct {
	label      string
	conditions []CompiledCondition[T]
}

// Label returns the group label.
func (g *CompiledGroup[T]) Label() string { return g.label }

// Conditions returns a copy of the conditions in evaluation order.
func (g *CompiledGroup[T]) Conditions() []CompiledCondition[T] {
	return slices.Clone(g.conditions)
}

// CompiledCatalog is an ordered disjunction of compiled groups.
// Immutable after Compile returns; safe for concurrent evaluation.
type CompiledCatalog[T any] struct {
	name           string
	groups         []CompiledGroup[T]
	dropEmptyCodes bool
}

// Name returns the catalog name.
func (c *CompiledCatalog[T]) Name() string { return c.name }

// Groups returns a copy of the surviving groups in declared order.
func (c *CompiledCatalog[T]) Groups() []CompiledGroup[T] {
	return slices.Clone(c.groups)
}

// CompileError describes one dropped condition or group.
// Unwraps to the underlying sentinel (types.ErrPropertyNotFound etc.).
type CompileError struct {
	Catalog   string
	Group     string
	Condition *types.Condition
	Err       error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	if e.Catalog != "" {
		fmt.Fprintf(&b, "catalog %q: ", e.Catalog)
	}
	if e.Group != "" {
		fmt.Fprintf(&b, "group %q: ", e.Group)
	}
	if e.Condition != nil {
		fmt.Fprintf(&b, "condition [%s]: ", e.Condition)
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

type options struct {
	logger           zerolog.Logger
	maxPatternLength int
	maxMatchInput    int
	workers          int
	dropEmptyCodes   bool
	costOrdering     bool
}

// Option configures a Compiler.
type Option func(*options)

// WithLogger sets the logger that receives compile failures.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxPatternLength bounds IsMatch pattern size.
func WithMaxPatternLength(n int) Option {
	return func(o *options) { o.maxPatternLength = n }
}

// WithMaxMatchInput bounds the input length IsMatch will scan.
func WithMaxMatchInput(n int) Option {
	return func(o *options) { o.maxMatchInput = n }
}

// WithWorkers sets how many groups compile concurrently. Values < 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithDropEmptyCodes removes empty failure codes from SatisfiedDetailed results.
func WithDropEmptyCodes() Option {
	return func(o *options) { o.dropEmptyCodes = true }
}

// WithCostOrdering sorts each group's conditions by ascending cost.
func WithCostOrdering() Option {
	return func(o *options) { o.costOrdering = true }
}

// Compiler compiles catalogs for items of type T.
// Safe for concurrent use; holds no mutable state.
type Compiler[T any] struct {
	desc Descriptor[T]
	opts options
	b    builder[T]
}

// NewCompiler creates a compiler resolving properties through desc.
func NewCompiler[T any](desc Descriptor[T], opts ...Option) *Compiler[T] {
	o := options{
		logger:           zerolog.Nop(),
		maxPatternLength: types.DefaultMaxPatternLength,
		maxMatchInput:    types.DefaultMaxMatchInput,
		workers:          1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return &Compiler[T]{
		desc: desc,
		opts: o,
		b: builder[T]{
			desc:             desc,
			maxPatternLength: o.maxPatternLength,
			maxMatchInput:    o.maxMatchInput,
		},
	}
}

// CompileCondition compiles a single condition.
// Failures are returned as *CompileError; nothing panics out of this call.
func (c *Compiler[T]) CompileCondition(cond types.Condition) (cc CompiledCondition[T], err error) {
	defer func() {
		// reflect panics on exotic types become compile failures
		if r := recover(); r != nil {
			cc = CompiledCondition[T]{}
			err = &CompileError{Condition: &cond, Err: fmt.Errorf("%w: %v", types.ErrTypeMismatch, r)}
		}
	}()

	test, err := c.b.build(cond)
	if err != nil {
		return CompiledCondition[T]{}, &CompileError{Condition: &cond, Err: err}
	}

	return CompiledCondition[T]{
		cond: cond,
		code: cond.Code,
		cost: c.conditionCost(cond),
		test: test,
	}, nil
}

// conditionCost estimates cost for an already validated condition.
func (c *Compiler[T]) conditionCost(cond types.Condition) int {
	var t reflect.Type
	name, _, _, _ := parseAddress(cond.Property)
	if prop, err := c.desc.Resolve(name); err == nil {
		t = prop.Type
	}
	literals := 0
	if Classify(cond.Operator) == CategoryInverseEnumerable || cond.Operator == types.OpOverlaps || cond.Operator == types.OpNotOverlaps {
		if strings.TrimSpace(cond.Value) != "" {
			literals = strings.Count(cond.Value, ",") + 1
		}
	}
	return CalculateConditionCost(cond.Operator, t, literals)
}

// CompileGroup compiles every condition of g, keeping successes in order.
// ok is false when g declared conditions but none compiled; the group
// must then be dropped. diag aggregates the dropped conditions.
func (c *Compiler[T]) CompileGroup(g types.Group) (group CompiledGroup[T], ok bool, diag error) {
	return c.compileGroup("", g)
}

func (c *Compiler[T]) compileGroup(catalog string, g types.Group) (CompiledGroup[T], bool, error) {
	group := CompiledGroup[T]{
		label:      g.Label,
		conditions: make([]CompiledCondition[T], 0, len(g.Conditions)),
	}

	var diag *multierror.Error
	for _, cond := range g.Conditions {
		cc, err := c.CompileCondition(cond)
		if err != nil {
			var ce *CompileError
			if errors.As(err, &ce) {
				ce.Catalog = catalog
				ce.Group = g.Label
			}
			c.opts.logger.Warn().
				Str("component", "rules").
				Str("operation", "compile_condition").
				Str("catalog", catalog).
				Str("group", g.Label).
				Str("property", cond.Property).
				Stringer("operator", cond.Operator).
				Str("value", cond.Value).
				Err(err).
				Msg("condition dropped")
			diag = multierror.Append(diag, err)
			continue
		}
		group.conditions = append(group.conditions, cc)
	}

	if c.opts.costOrdering {
		// equal-cost conditions keep declared order
		sort.SliceStable(group.conditions, func(i, j int) bool {
			return group.conditions[i].cost < group.conditions[j].cost
		})
	}

	if len(g.Conditions) > 0 && len(group.conditions) == 0 {
		c.opts.logger.Warn().
			Str("component", "rules").
			Str("operation", "compile_group").
			Str("catalog", catalog).
			Str("group", g.Label).
			Int("declared", len(g.Conditions)).
			Msg("group dropped: no usable conditions")
		diag = multierror.Append(diag, &CompileError{Catalog: catalog, Group: g.Label, Err: types.ErrNoUsableConditions})
		return CompiledGroup[T]{}, false, diag.ErrorOrNil()
	}

	return group, true, diag.ErrorOrNil()
}

// Compile compiles every group of cat. The returned catalog is never nil
// and is always safe to evaluate; the error, if any, lists what was dropped.
func (c *Compiler[T]) Compile(cat types.Catalog) (*CompiledCatalog[T], error) {
	type result struct {
		group CompiledGroup[T]
		ok    bool
		diag  error
	}
	results := make([]result, len(cat.Groups))

	var g errgroup.Group
	g.SetLimit(c.opts.workers)
	for i := range cat.Groups {
		g.Go(func() error {
			group, ok, diag := c.compileGroup(cat.Name, cat.Groups[i])
			results[i] = result{group: group, ok: ok, diag: diag}
			return nil
		})
	}
	_ = g.Wait()

	compiled := &CompiledCatalog[T]{
		name:           cat.Name,
		groups:         make([]CompiledGroup[T], 0, len(cat.Groups)),
		dropEmptyCodes: c.opts.dropEmptyCodes,
	}
	var diag *multierror.Error
	for _, r := range results {
		if r.diag != nil {
			diag = multierror.Append(diag, r.diag)
		}
		if r.ok {
			compiled.groups = append(compiled.groups, r.group)
		}
	}

	if len(cat.Groups) > 0 && len(compiled.groups) == 0 {
		c.opts.logger.Warn().
			Str("component", "rules").
			Str("operation", "compile_catalog").
			Str("catalog", cat.Name).
			Int("declared_groups", len(cat.Groups)).
			Msg("every group dropped: catalog is vacuously satisfied")
	}

	return compiled, diag.ErrorOrNil()
}
