// internal/rules/evaluate.go
package rules

/*
 * Evaluation over compiled catalogs.
 *
 * Three query modes, all pure and lock-free:
 *   - Satisfied: short-circuit inside a group on the first false condition,
 *     short-circuit the catalog on the first satisfied group
 *   - SatisfiedDetailed: evaluates every condition of every non-satisfied
 *     group so all failing codes are collected; returns success as soon as
 *     one group holds, discarding codes gathered so far
 *   - FirstMatching: label of the first satisfied group in declared order
 *
 * A catalog with no groups is satisfied by every item. A group with no
 * conditions is satisfied by every item.
 *
 * Evaluation performs no I/O and allocates only the returned code slice.
 */

// Outcome is the result of SatisfiedDetailed.
// Codes is nil when Satisfied is true.
type Outcome struct {
	Satisfied bool
	Codes     []string
}

// Satisfied reports whether every condition of g holds for item.
func (g *CompiledGroup[T]) Satisfied(item T) bool {
	for i := range g.conditions {
		if !g.conditions[i].test(item) {
			return false
		}
	}
	return true
}

// Satisfied reports whether any group holds for item.
// A nil catalog behaves like a catalog with no groups.
func (c *CompiledCatalog[T]) Satisfied(item T) bool {
	if c == nil || len(c.groups) == 0 {
		return true
	}
	for i := range c.groups {
		if c.groups[i].Satisfied(item) {
			return true
		}
	}
	return false
}

// SatisfiedDetailed evaluates item and, when no group holds, returns the
// failing codes deduplicated in order of first occurrence.
func (c *CompiledCatalog[T]) SatisfiedDetailed(item T) Outcome {
	if c == nil || len(c.groups) == 0 {
		return Outcome{Satisfied: true}
	}

	var codes []string
	var seen map[string]struct{}
	for i := range c.groups {
		failed := false
		for _, cond := range c.groups[i].conditions {
			if cond.test(item) {
				continue
			}
			failed = true
			if cond.code == "" && c.dropEmptyCodes {
				continue
			}
			if seen == nil {
				seen = make(map[string]struct{})
			}
			if _, dup := seen[cond.code]; dup {
				continue
			}
			seen[cond.code] = struct{}{}
			codes = append(codes, cond.code)
		}
		if !failed {
			return Outcome{Satisfied: true}
		}
	}
	if codes == nil {
		codes = []string{}
	}
	return Outcome{Satisfied: false, Codes: codes}
}

// FirstMatching returns the label of the first group satisfied by item.
func (c *CompiledCatalog[T]) FirstMatching(item T) (string, bool) {
	if c == nil {
		return "", false
	}
	for i := range c.groups {
		if c.groups[i].Satisfied(item) {
			return c.groups[i].label, true
		}
	}
	return "", false
}
