// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package evaluator walks a parsed rule tree against a resolved field-value
// map to produce a single boolean, with short-circuit AND/OR semantics and
// optional per-node execution tracing.
package evaluator

import (
	"fmt"
	"strings"

	"github.com/ankitjan/rulesengine/internal/compare"
	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/ruletypes"
)

// TraceNode records one node's evaluation for RuleExecutionResult.Trace:
// node path, description, and outcome.
type TraceNode struct {
	Path        string
	Description string
	Result      bool
	Children    []*TraceNode
}

// Result is the outcome of evaluating a rule tree, with an optional trace.
type Result struct {
	Matched bool
	Trace   *TraceNode
	Diags   diag.Diagnostics
}

// Evaluate walks rule against fieldValues and returns its boolean outcome,
// without building a trace. A nil rule evaluates to false; a rule with no
// items evaluates to true (false if the rule itself is negated).
func Evaluate(rule *ruletypes.Rule, fieldValues map[string]any) (bool, diag.Diagnostics) {
	var group ruletypes.GroupLike
	if rule != nil {
		group = rule
	}
	res := evaluate(group, fieldValues, "root", false)
	return res.Matched, res.Diags
}

// EvaluateWithTrace behaves like Evaluate but also produces a TraceNode
// tree describing how each condition and group contributed to the result,
// for diagnostic surfaces.
func EvaluateWithTrace(rule *ruletypes.Rule, fieldValues map[string]any) Result {
	var group ruletypes.GroupLike
	if rule != nil {
		group = rule
	}
	return evaluate(group, fieldValues, "root", true)
}

func evaluate(group ruletypes.GroupLike, fieldValues map[string]any, path string, trace bool) Result {
	if group == nil {
		return Result{Matched: false, Trace: leafTrace(trace, path, "null rule", false)}
	}
	items := group.GetItems()
	if len(items) == 0 {
		matched := applyNot(group.GetNot(), true)
		return Result{Matched: matched, Trace: leafTrace(trace, path, "empty group", matched)}
	}

	combinator := group.GetCombinator()
	var diags diag.Diagnostics
	var children []*TraceNode
	var matched bool

	switch combinator {
	case ruletypes.Or:
		matched = false
		for i, item := range items {
			childPath := fmt.Sprintf("%s.rules[%d]", path, i)
			childRes := evaluateItem(item, fieldValues, childPath, trace)
			diags = diags.Extend(childRes.Diags)
			if trace {
				children = append(children, childRes.Trace)
			}
			if childRes.Matched {
				matched = true
				// short-circuit: no need to evaluate remaining items
				break
			}
		}
	default: // And, and any unrecognized combinator already folded to And by ParseCombinator
		matched = true
		for i, item := range items {
			childPath := fmt.Sprintf("%s.rules[%d]", path, i)
			childRes := evaluateItem(item, fieldValues, childPath, trace)
			diags = diags.Extend(childRes.Diags)
			if trace {
				children = append(children, childRes.Trace)
			}
			if !childRes.Matched {
				matched = false
				break
			}
		}
	}

	matched = applyNot(group.GetNot(), matched)
	var tr *TraceNode
	if trace {
		tr = &TraceNode{
			Path:        path,
			Description: describeGroup(group),
			Result:      matched,
			Children:    children,
		}
	}
	return Result{Matched: matched, Trace: tr, Diags: diags}
}

func evaluateItem(item ruletypes.RuleItem, fieldValues map[string]any, path string, trace bool) Result {
	switch v := item.(type) {
	case *ruletypes.Group:
		return evaluate(v, fieldValues, path, trace)
	case *ruletypes.Condition:
		return evaluateCondition(v, fieldValues, path, trace)
	default:
		return Result{Matched: false}
	}
}

func evaluateCondition(c *ruletypes.Condition, fieldValues map[string]any, path string, trace bool) Result {
	actual := fieldValues[c.Field]
	matched, diags := compare.Compare(actual, c.Operator, c.Value)
	matched = applyNot(c.Not, matched)
	var tr *TraceNode
	if trace {
		tr = &TraceNode{Path: path, Description: describeCondition(c), Result: matched}
	}
	return Result{Matched: matched, Trace: tr, Diags: diags}
}

func applyNot(not bool, v bool) bool {
	if not {
		return !v
	}
	return v
}

func leafTrace(trace bool, path, desc string, result bool) *TraceNode {
	if !trace {
		return nil
	}
	return &TraceNode{Path: path, Description: desc, Result: result}
}

func describeGroup(g ruletypes.GroupLike) string {
	var b strings.Builder
	if g.GetNot() {
		b.WriteString("NOT ")
	}
	b.WriteString(strings.ToUpper(string(g.GetCombinator())))
	b.WriteString(fmt.Sprintf(" (%d items)", len(g.GetItems())))
	return b.String()
}

func describeCondition(c *ruletypes.Condition) string {
	var b strings.Builder
	if c.Not {
		b.WriteString("NOT ")
	}
	fmt.Fprintf(&b, "%s %s %v", c.Field, c.Operator, c.Value)
	return b.String()
}
