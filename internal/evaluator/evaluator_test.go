// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rulesengine/internal/ruletypes"
)

func cond(field string, op ruletypes.Operator, value any) *ruletypes.Condition {
	return &ruletypes.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluateNilRuleFalseEmptyRuleTrue(t *testing.T) {
	matched, _ := Evaluate(nil, nil)
	assert.False(t, matched, "a nil rule does not match")

	matched, _ = Evaluate(&ruletypes.Rule{Combinator: ruletypes.And}, map[string]any{})
	assert.True(t, matched)
}

func TestEvaluateAndShortCircuits(t *testing.T) {
	rule := &ruletypes.Rule{
		Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{
			cond("age", ruletypes.OpGE, 18),
			cond("country", ruletypes.OpEQ, "US"),
		},
	}
	matched, _ := Evaluate(rule, map[string]any{"age": 21, "country": "US"})
	assert.True(t, matched)

	matched, _ = Evaluate(rule, map[string]any{"age": 15, "country": "US"})
	assert.False(t, matched)

	res := EvaluateWithTrace(rule, map[string]any{"age": 15, "country": "US"})
	require.NotNil(t, res.Trace)
	assert.Len(t, res.Trace.Children, 1, "AND stops at the first false condition")
}

func TestEvaluateOrMatchesOnAny(t *testing.T) {
	rule := &ruletypes.Rule{
		Combinator: ruletypes.Or,
		Items: []ruletypes.RuleItem{
			cond("tier", ruletypes.OpEQ, "gold"),
			cond("tier", ruletypes.OpEQ, "platinum"),
		},
	}
	matched, _ := Evaluate(rule, map[string]any{"tier": "platinum"})
	assert.True(t, matched)

	matched, _ = Evaluate(rule, map[string]any{"tier": "silver"})
	assert.False(t, matched)
}

func TestEvaluateNotNegatesResult(t *testing.T) {
	rule := &ruletypes.Rule{
		Combinator: ruletypes.And,
		Not:        true,
		Items:      []ruletypes.RuleItem{cond("blocked", ruletypes.OpEQ, true)},
	}
	matched, _ := Evaluate(rule, map[string]any{"blocked": true})
	assert.False(t, matched)
	matched, _ = Evaluate(rule, map[string]any{"blocked": false})
	assert.True(t, matched)
}

func TestEvaluateNestedGroup(t *testing.T) {
	rule := &ruletypes.Rule{
		Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{
			cond("country", ruletypes.OpEQ, "US"),
			&ruletypes.Group{
				Combinator: ruletypes.Or,
				Items: []ruletypes.RuleItem{
					cond("tier", ruletypes.OpEQ, "gold"),
					cond("age", ruletypes.OpGE, 65),
				},
			},
		},
	}
	matched, _ := Evaluate(rule, map[string]any{"country": "US", "tier": "silver", "age": 70})
	assert.True(t, matched)
	matched, _ = Evaluate(rule, map[string]any{"country": "US", "tier": "silver", "age": 30})
	assert.False(t, matched)
}

func TestEvaluateUnknownCombinatorFallsBackToAnd(t *testing.T) {
	comb, recognized := ruletypes.ParseCombinator("XOR")
	require.False(t, recognized)
	require.Equal(t, ruletypes.And, comb)
}

func TestEvaluateWithTraceProducesPaths(t *testing.T) {
	rule := &ruletypes.Rule{
		Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{
			cond("age", ruletypes.OpGE, 18),
			&ruletypes.Group{
				Combinator: ruletypes.Or,
				Items:      []ruletypes.RuleItem{cond("tier", ruletypes.OpEQ, "gold")},
			},
		},
	}
	res := EvaluateWithTrace(rule, map[string]any{"age": 21, "tier": "gold"})
	require.True(t, res.Matched)
	require.NotNil(t, res.Trace)
	require.Len(t, res.Trace.Children, 2)
	assert.Equal(t, "root.rules[0]", res.Trace.Children[0].Path)
	assert.Equal(t, "root.rules[1]", res.Trace.Children[1].Path)
	require.Len(t, res.Trace.Children[1].Children, 1)
	assert.Equal(t, "root.rules[1].rules[0]", res.Trace.Children[1].Children[0].Path)
}
