package types

import "errors"

// Sentinel errors for ruleset operations.
var (
	// ErrPropertyNotFound indicates a property name does not resolve on the target type.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrTypeMismatch indicates an operator cannot apply to the resolved type(s).
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrCoercionFailed indicates a literal could not be parsed into the property type.
	ErrCoercionFailed = errors.New("literal coercion failed")

	// ErrUnsupportedOperator indicates an operator token has no classification.
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrInvalidAddress indicates a malformed "Prop[key]" property address.
	ErrInvalidAddress = errors.New("invalid property address")

	// ErrPatternTooLong indicates an IsMatch pattern exceeds the configured maximum.
	ErrPatternTooLong = errors.New("pattern exceeds maximum length")

	// ErrTooManyLiterals indicates a literal set exceeds MaxLiteralSetSize.
	ErrTooManyLiterals = errors.New("literal set has too many values")

	// ErrNoUsableConditions indicates a group declared conditions but none compiled.
	ErrNoUsableConditions = errors.New("group has no usable conditions")

	// ErrCatalogNotFound indicates no compiled catalog exists under the requested name.
	ErrCatalogNotFound = errors.New("catalog not found")

	// ErrProductTooLarge indicates And() would exceed MaxProductGroups.
	ErrProductTooLarge = errors.New("catalog product exceeds maximum group count")
)
