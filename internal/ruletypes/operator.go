// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package ruletypes

import "strings"

// Operator is one of the closed set of comparison operators a Condition may
// use. The set is closed: there is no extension mechanism, because the
// Comparator (internal/compare) has fixed semantics for each one.
type Operator string

const (
	OpEQ          Operator = "EQ"
	OpNE          Operator = "NE"
	OpLT          Operator = "LT"
	OpLE          Operator = "LE"
	OpGT          Operator = "GT"
	OpGE          Operator = "GE"
	OpContains    Operator = "CONTAINS"
	OpStartsWith  Operator = "STARTS_WITH"
	OpEndsWith    Operator = "ENDS_WITH"
	OpIn          Operator = "IN"
	OpNotIn       Operator = "NOT_IN"
	OpIsEmpty     Operator = "IS_EMPTY"
	OpIsNotEmpty  Operator = "IS_NOT_EMPTY"
)

// ParseOperator normalizes a wire-format operator string (case-insensitive)
// to its canonical Operator value. The bool result is false for anything
// outside the closed set.
func ParseOperator(s string) (Operator, bool) {
	op := Operator(strings.ToUpper(strings.TrimSpace(s)))
	switch op {
	case OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE,
		OpContains, OpStartsWith, OpEndsWith,
		OpIn, OpNotIn, OpIsEmpty, OpIsNotEmpty:
		return op, true
	default:
		return "", false
	}
}

// RequiresNoValue reports whether the operator is one of the value-less
// unary forms (IS_EMPTY / IS_NOT_EMPTY).
func (o Operator) RequiresNoValue() bool {
	return o == OpIsEmpty || o == OpIsNotEmpty
}

// Valid reports whether o is a member of the closed operator set.
func (o Operator) Valid() bool {
	_, ok := ParseOperator(string(o))
	return ok
}
