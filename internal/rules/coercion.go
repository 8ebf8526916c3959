// internal/rules/coercion.go
package rules

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/ruleset/internal/types"
)

/*
 * Literal coercion.
 *
 * Converts a condition's string literal into a value of the property's
 * static type, once, at compile time. Parsing is culture-invariant
 * (strconv): "." is the only decimal separator and there are no grouping
 * separators.
 *
 * Resolution order:
 *   1. time.Duration: time.ParseDuration ("1h30m")
 *   2. types whose pointer implements encoding.TextUnmarshaler: enumerations
 *      parse by member name, time.Time by RFC 3339
 *   3. kind-based parsing: string (verbatim), bool, signed/unsigned ints
 *      with bit-size overflow checks, floats
 *
 * Pointer types coerce to their element type; the predicate dereferences
 * the property value before comparing. Every failure wraps
 * ErrCoercionFailed so the Condition Compiler can report it uniformly.
 */

var (
	durationType        = reflect.TypeFor[time.Duration]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// Coerce parses literal into a value of t's base type.
func Coerce(literal string, t reflect.Type) (reflect.Value, error) {
	base := baseType(t)

	if base == durationType {
		d, err := time.ParseDuration(strings.TrimSpace(literal))
		if err != nil {
			return reflect.Value{}, coercionError(literal, t, err)
		}
		return reflect.ValueOf(d), nil
	}

	if reflect.PointerTo(base).Implements(textUnmarshalerType) {
		ptr := reflect.New(base)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(strings.TrimSpace(literal))); err != nil {
			return reflect.Value{}, coercionError(literal, t, err)
		}
		return ptr.Elem(), nil
	}

	out := reflect.New(base).Elem()
	s := strings.TrimSpace(literal)
	switch base.Kind() {
	case reflect.String:
		// strings keep surrounding whitespace
		out.SetString(literal)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, coercionError(literal, t, err)
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, base.Bits())
		if err != nil {
			return reflect.Value{}, coercionError(literal, t, err)
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(s, 10, base.Bits())
		if err != nil {
			return reflect.Value{}, coercionError(literal, t, err)
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, base.Bits())
		if err != nil {
			return reflect.Value{}, coercionError(literal, t, err)
		}
		out.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("%w: no literal form for %s", types.ErrCoercionFailed, t)
	}
	return out, nil
}

// CoerceList splits literal on commas and coerces each trimmed token.
// A blank literal is the empty list.
func CoerceList(literal string, t reflect.Type) ([]reflect.Value, error) {
	if strings.TrimSpace(literal) == "" {
		return nil, nil
	}
	tokens := strings.Split(literal, ",")
	if len(tokens) > types.MaxLiteralSetSize {
		return nil, fmt.Errorf("%w: %d values (max %d)", types.ErrTooManyLiterals, len(tokens), types.MaxLiteralSetSize)
	}
	values := make([]reflect.Value, 0, len(tokens))
	for _, token := range tokens {
		v, err := Coerce(strings.TrimSpace(token), t)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func coercionError(literal string, t reflect.Type, cause error) error {
	return fmt.Errorf("%w: %q as %s: %v", types.ErrCoercionFailed, literal, t, cause)
}
