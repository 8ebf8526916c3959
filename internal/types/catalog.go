package types

import "fmt"

// Condition is a single comparison: property, operator, value, failure code.
//
// Property may address a map entry as "Prop[key]" for key-value operators.
// Value holds a literal, a comma-separated literal set, or, for Inner*
// operators, the name of another property on the same item.
type Condition struct {
	Property    string   `json:"property"`
	Operator    Operator `json:"operator"`
	Value       string   `json:"value"`
	Code        string   `json:"code,omitempty"`
	Description string   `json:"description,omitempty"`
}

// String renders the condition for logs and diagnostics.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %q", c.Property, c.Operator, c.Value)
}

// Group is a conjunction: satisfied iff every condition holds.
// An empty condition list is vacuously satisfied.
type Group struct {
	Label      string      `json:"label"`
	Conditions []Condition `json:"conditions"`
}

// Catalog is a disjunction: satisfied iff at least one group holds.
// A catalog with no groups is vacuously satisfied.
type Catalog struct {
	Name   string  `json:"name"`
	Groups []Group `json:"groups"`
}
