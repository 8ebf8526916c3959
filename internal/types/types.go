// Package types provides domain models shared across ruleset components.
//
// Catalog, Group and Condition are the declarative, wire-agnostic form of a
// condition set. They are produced by configuration loading (files, database)
// and are never mutated afterwards; the rules package compiles them into
// executable predicates.
package types

// CatalogID identifies a stored catalog row.
// String alias keeps JSON and SQL representations identical.
type CatalogID string

// VersionID identifies one compiled generation of the engine's catalogs.
// UUIDv7 ordering lets operators tell which generation is newer from the ID alone.
type VersionID string

// Record is a dynamically typed item, typically decoded from JSON.
// Evaluated through a schema-driven descriptor rather than struct reflection.
type Record map[string]any

// Resource limits enforced at compile time so evaluation cost stays bounded.
const (
	// DefaultMaxPatternLength caps IsMatch pattern size.
	// RE2 matching is linear in input, but program size grows with the pattern.
	DefaultMaxPatternLength = 1024

	// DefaultMaxMatchInput caps the string length IsMatch will scan.
	// Longer inputs are treated as non-matching.
	DefaultMaxMatchInput = 64 * 1024

	// MaxLiteralSetSize limits comma-separated literal sets (Overlaps, IsContained).
	MaxLiteralSetSize = 1024

	// MaxProductGroups limits the group count produced by And().
	// The cartesian product grows multiplicatively when combinators are chained.
	MaxProductGroups = 4096
)
