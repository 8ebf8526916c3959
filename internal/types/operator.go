package types

import "strings"

// Operator is a condition operator token.
// Unknown tokens decode to OpUnsupported instead of failing, so a single bad
// condition is dropped at compile time rather than rejecting the whole catalog.
type Operator int

const (
	OpUnsupported Operator = iota

	// Direct comparison against a literal
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual

	// String methods
	OpStartsWith
	OpEndsWith
	OpStringContains
	OpIsMatch

	// Sequence property against literal(s)
	OpContains
	OpNotContains
	OpOverlaps
	OpNotOverlaps

	// Literal list against scalar property
	OpIsContained
	OpIsNotContained

	// Property against property
	OpInnerEqual
	OpInnerNotEqual
	OpInnerLessThan
	OpInnerLessThanOrEqual
	OpInnerGreaterThan
	OpInnerGreaterThanOrEqual

	OpInnerContains
	OpInnerNotContains

	OpInnerOverlaps
	OpInnerNotOverlaps

	// String-keyed maps
	OpContainsKey
	OpNotContainsKey
	OpContainsValue
	OpNotContainsValue
	OpKeyContainsValue
	OpNotKeyContainsValue
)

var operatorNames = [...]string{
	OpUnsupported:             "Unsupported",
	OpEqual:                   "Equal",
	OpNotEqual:                "NotEqual",
	OpLessThan:                "LessThan",
	OpLessThanOrEqual:         "LessThanOrEqual",
	OpGreaterThan:             "GreaterThan",
	OpGreaterThanOrEqual:      "GreaterThanOrEqual",
	OpStartsWith:              "StartsWith",
	OpEndsWith:                "EndsWith",
	OpStringContains:          "StringContains",
	OpIsMatch:                 "IsMatch",
	OpContains:                "Contains",
	OpNotContains:             "NotContains",
	OpOverlaps:                "Overlaps",
	OpNotOverlaps:             "NotOverlaps",
	OpIsContained:             "IsContained",
	OpIsNotContained:          "IsNotContained",
	OpInnerEqual:              "InnerEqual",
	OpInnerNotEqual:           "InnerNotEqual",
	OpInnerLessThan:           "InnerLessThan",
	OpInnerLessThanOrEqual:    "InnerLessThanOrEqual",
	OpInnerGreaterThan:        "InnerGreaterThan",
	OpInnerGreaterThanOrEqual: "InnerGreaterThanOrEqual",
	OpInnerContains:           "InnerContains",
	OpInnerNotContains:        "InnerNotContains",
	OpInnerOverlaps:           "InnerOverlaps",
	OpInnerNotOverlaps:        "InnerNotOverlaps",
	OpContainsKey:             "ContainsKey",
	OpNotContainsKey:          "NotContainsKey",
	OpContainsValue:           "ContainsValue",
	OpNotContainsValue:        "NotContainsValue",
	OpKeyContainsValue:        "KeyContainsValue",
	OpNotKeyContainsValue:     "NotKeyContainsValue",
}

// symbolic aliases accepted for direct comparisons
var operatorAliases = map[string]Operator{
	"=":  OpEqual,
	"==": OpEqual,
	"!=": OpNotEqual,
	"<>": OpNotEqual,
	"<":  OpLessThan,
	"<=": OpLessThanOrEqual,
	">":  OpGreaterThan,
	">=": OpGreaterThanOrEqual,
}

var operatorsByName = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames)+len(operatorAliases))
	for op, name := range operatorNames {
		if Operator(op) == OpUnsupported {
			continue
		}
		m[strings.ToLower(name)] = Operator(op)
	}
	for alias, op := range operatorAliases {
		m[alias] = op
	}
	return m
}()

// ParseOperator maps a token to its Operator. Matching is case-insensitive.
// Never fails: unknown tokens yield OpUnsupported.
func ParseOperator(token string) Operator {
	if op, ok := operatorsByName[strings.ToLower(strings.TrimSpace(token))]; ok {
		return op
	}
	return OpUnsupported
}

// String returns the canonical token.
func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return operatorNames[OpUnsupported]
	}
	return operatorNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Unknown tokens are accepted as OpUnsupported.
func (o *Operator) UnmarshalText(text []byte) error {
	*o = ParseOperator(string(text))
	return nil
}
