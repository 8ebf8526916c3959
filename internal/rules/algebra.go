// internal/rules/algebra.go
package rules

import (
	"fmt"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Catalog algebra over uncompiled catalogs.
 *
 * Or:  name "(A OR B)", groups = A.groups ++ B.groups
 * And: name "(A AND B)", groups = A.groups x B.groups; each produced group
 *      is labelled "(La AND Lb)" with the union of both groups' conditions
 *      (a condition present in both appears once). An empty operand yields
 *      an empty product.
 *
 * Results never share slices with their operands. And refuses products
 * larger than types.MaxProductGroups.
 */

// Combinator selects Or or And for Combine.
type Combinator int

const (
	CombineOr Combinator = iota
	CombineAnd
)

func (c Combinator) String() string {
	if c == CombineAnd {
		return "AND"
	}
	return "OR"
}

// Or returns the disjunction of a and b.
func Or(a, b types.Catalog) types.Catalog {
	groups := make([]types.Group, 0, len(a.Groups)+len(b.Groups))
	for _, g := range a.Groups {
		groups = append(groups, copyGroup(g))
	}
	for _, g := range b.Groups {
		groups = append(groups, copyGroup(g))
	}
	return types.Catalog{
		Name:   fmt.Sprintf("(%s OR %s)", a.Name, b.Name),
		Groups: groups,
	}
}

// And returns the conjunction of a and b.
func And(a, b types.Catalog) (types.Catalog, error) {
	n := len(a.Groups) * len(b.Groups)
	if n > types.MaxProductGroups {
		return types.Catalog{}, fmt.Errorf("%w: %d x %d groups (max %d)",
			types.ErrProductTooLarge, len(a.Groups), len(b.Groups), types.MaxProductGroups)
	}

	groups := make([]types.Group, 0, n)
	for _, ga := range a.Groups {
		for _, gb := range b.Groups {
			groups = append(groups, types.Group{
				Label:      fmt.Sprintf("(%s AND %s)", ga.Label, gb.Label),
				Conditions: unionConditions(ga.Conditions, gb.Conditions),
			})
		}
	}
	return types.Catalog{
		Name:   fmt.Sprintf("(%s AND %s)", a.Name, b.Name),
		Groups: groups,
	}, nil
}

// Combine folds op left to right over catalogs. One catalog is returned
// as a copy; zero catalogs yield an empty catalog.
func Combine(op Combinator, catalogs ...types.Catalog) (types.Catalog, error) {
	if len(catalogs) == 0 {
		return types.Catalog{}, nil
	}
	acc := types.Catalog{Name: catalogs[0].Name, Groups: make([]types.Group, 0, len(catalogs[0].Groups))}
	for _, g := range catalogs[0].Groups {
		acc.Groups = append(acc.Groups, copyGroup(g))
	}

	for _, next := range catalogs[1:] {
		switch op {
		case CombineAnd:
			var err error
			if acc, err = And(acc, next); err != nil {
				return types.Catalog{}, err
			}
		default:
			acc = Or(acc, next)
		}
	}
	return acc, nil
}

func copyGroup(g types.Group) types.Group {
	conds := make([]types.Condition, len(g.Conditions))
	copy(conds, g.Conditions)
	return types.Group{Label: g.Label, Conditions: conds}
}

// unionConditions concatenates a and b, skipping conditions of b already in a.
func unionConditions(a, b []types.Condition) []types.Condition {
	out := make([]types.Condition, 0, len(a)+len(b))
	out = append(out, a...)
	for _, cb := range b {
		dup := false
		for _, ca := range a {
			if ca == cb {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, cb)
		}
	}
	return out
}
