// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ankitjan/rulesengine/internal/ruletypes"
)

func TestCompareEQNE(t *testing.T) {
	ok, _ := Compare(nil, ruletypes.OpEQ, nil)
	assert.True(t, ok)

	ok, _ = Compare("25", ruletypes.OpEQ, 25)
	assert.True(t, ok, "numeric string should equal number by canonical form")

	ok, _ = Compare("US", ruletypes.OpEQ, "US")
	assert.True(t, ok)

	eq, _ := Compare("a", ruletypes.OpEQ, "b")
	ne, _ := Compare("a", ruletypes.OpNE, "b")
	assert.Equal(t, !eq, ne, "operator duality: EQ and NE must disagree")
}

func TestCompareOrdered(t *testing.T) {
	ok, _ := Compare(25, ruletypes.OpGT, 18)
	assert.True(t, ok)

	ok, _ = Compare(30, ruletypes.OpGE, "21")
	assert.True(t, ok)

	ok, diags := Compare("not-a-number", ruletypes.OpLT, 5)
	assert.False(t, ok)
	assert.True(t, len(diags) > 0, "non-numeric operand should produce a warning, not an error")
}

func TestCompareStringOps(t *testing.T) {
	ok, _ := Compare("Hello World", ruletypes.OpContains, "world")
	assert.True(t, ok, "CONTAINS is case-insensitive")

	ok, _ = Compare(nil, ruletypes.OpStartsWith, "x")
	assert.False(t, ok, "null actual is false for string ops")
}

func TestCompareMembership(t *testing.T) {
	ok, _ := Compare("b", ruletypes.OpIn, []any{"a", "b", "c"})
	assert.True(t, ok)

	ok, _ = Compare("z", ruletypes.OpNotIn, []any{"a", "b", "c"})
	assert.True(t, ok)
}

func TestCompareEmpty(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, true},
		{"", true},
		{"  ", true},
		{"x", false},
		{[]any{}, true},
		{[]any{1}, false},
	}
	for _, tc := range cases {
		ok, _ := Compare(tc.v, ruletypes.OpIsEmpty, nil)
		assert.Equal(t, tc.want, ok, "IS_EMPTY(%v)", tc.v)

		notOk, _ := Compare(tc.v, ruletypes.OpIsNotEmpty, nil)
		assert.Equal(t, !tc.want, notOk, "IS_NOT_EMPTY duality for %v", tc.v)
	}
}

func TestCompareUnknownOperator(t *testing.T) {
	ok, diags := Compare(1, ruletypes.Operator("BOGUS"), 1)
	assert.False(t, ok)
	assert.True(t, len(diags) > 0)
}
