// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package compare implements type-coercing comparison for the closed
// operator set in ruletypes. Every exported function is pure and never
// panics or returns an error — any internal failure (cast, parse) yields
// false, with a diagnostic instead of a propagated error.
package compare

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/ruletypes"
)

// Compare evaluates actual <operator> expected and returns the boolean
// result plus any warnings produced along the way (e.g. an unparseable
// numeric operand, an unknown operator). It never returns an error:
// comparator failures degrade to false.
func Compare(actual any, op ruletypes.Operator, expected any) (bool, diag.Diagnostics) {
	var diags diag.Diagnostics
	switch op {
	case ruletypes.OpEQ:
		return valuesEqual(actual, expected), diags
	case ruletypes.OpNE:
		return !valuesEqual(actual, expected), diags
	case ruletypes.OpLT, ruletypes.OpLE, ruletypes.OpGT, ruletypes.OpGE:
		return compareOrdered(actual, op, expected, &diags)
	case ruletypes.OpContains, ruletypes.OpStartsWith, ruletypes.OpEndsWith:
		return compareString(actual, op, expected), diags
	case ruletypes.OpIn, ruletypes.OpNotIn:
		return compareMembership(actual, op, expected, &diags)
	case ruletypes.OpIsEmpty:
		return isEmpty(actual), diags
	case ruletypes.OpIsNotEmpty:
		return !isEmpty(actual), diags
	default:
		diags = diags.Warnf("unknown operator", "operator %q is not recognized; treating comparison as false", op)
		return false, diags
	}
}

// valuesEqual implements the EQ rule: both-null is equal; otherwise direct
// deep equality, falling back to canonical string form.
func valuesEqual(a, b any) bool {
	if isNull(a) && isNull(b) {
		return true
	}
	if isNull(a) || isNull(b) {
		return false
	}
	if da, ok := asDecimal(a); ok {
		if db, ok2 := asDecimal(b); ok2 {
			return da.Equal(db)
		}
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return canonicalString(a) == canonicalString(b)
}

func compareOrdered(actual any, op ruletypes.Operator, expected any, diags *diag.Diagnostics) (bool, diag.Diagnostics) {
	da, ok := asDecimal(actual)
	if !ok {
		*diags = diags.Warnf("non-numeric operand", "left operand %v is not numeric; comparison is false", actual)
		return false, *diags
	}
	db, ok := asDecimal(expected)
	if !ok {
		*diags = diags.Warnf("non-numeric operand", "right operand %v is not numeric; comparison is false", expected)
		return false, *diags
	}
	cmp := da.Cmp(db)
	switch op {
	case ruletypes.OpLT:
		return cmp < 0, *diags
	case ruletypes.OpLE:
		return cmp <= 0, *diags
	case ruletypes.OpGT:
		return cmp > 0, *diags
	case ruletypes.OpGE:
		return cmp >= 0, *diags
	default:
		return false, *diags
	}
}

func compareString(actual any, op ruletypes.Operator, expected any) bool {
	if isNull(actual) || isNull(expected) {
		return false
	}
	a := strings.ToLower(canonicalString(actual))
	b := strings.ToLower(canonicalString(expected))
	switch op {
	case ruletypes.OpContains:
		return strings.Contains(a, b)
	case ruletypes.OpStartsWith:
		return strings.HasPrefix(a, b)
	case ruletypes.OpEndsWith:
		return strings.HasSuffix(a, b)
	default:
		return false
	}
}

func compareMembership(actual any, op ruletypes.Operator, expected any, diags *diag.Diagnostics) (bool, diag.Diagnostics) {
	elems, ok := toSlice(expected)
	if !ok {
		*diags = diags.Warnf("non-sequence operand", "IN/NOT_IN expected a sequence, got %T; comparison is false", expected)
		return false, *diags
	}
	member := false
	for _, e := range elems {
		if valuesEqual(actual, e) {
			member = true
			break
		}
	}
	if op == ruletypes.OpNotIn {
		return !member, *diags
	}
	return member, *diags
}

func isEmpty(v any) bool {
	if isNull(v) {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	default:
		if elems, ok := toSlice(v); ok {
			return len(elems) == 0
		}
		return false
	}
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	default:
		return false
	}
}

func toSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asDecimal coerces v to an arbitrary-precision decimal if it is a number
// or a numeric string. Anything else fails.
func asDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

// canonicalString renders any value deterministically for string-form
// comparison (EQ fallback, CONTAINS/STARTS_WITH/ENDS_WITH).
func canonicalString(v any) string {
	if d, ok := asDecimal(v); ok {
		return d.String()
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("%v", v)
}
