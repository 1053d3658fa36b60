// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package ruletypes defines the rule tree data model: a recursive tree of
// Conditions and Groups joined by AND/OR combinators, with optional
// per-node negation.
//
// The package carries no evaluation logic (that lives in internal/evaluator)
// and no comparison logic (internal/compare). It exists to parse the wire
// representation into an in-memory tree, to answer structural questions
// about that tree (referenced field names, validation of shape), and to
// surface non-fatal parse-time diagnostics such as an unrecognized
// combinator falling back to AND.
package ruletypes

import (
	"encoding/json"
	"fmt"

	"github.com/ankitjan/rulesengine/internal/diag"
)

// GroupLike is implemented by both Rule and Group: anything that combines
// an ordered list of RuleItems under a single combinator and an optional
// negation. The evaluator walks a Rule exactly as it walks any nested
// Group by way of this interface.
type GroupLike interface {
	GetCombinator() Combinator
	GetNot() bool
	GetItems() []RuleItem
}

// Rule is the root of one rule tree, as loaded from the rule store or
// supplied directly to executeWithDefinition.
type Rule struct {
	ID         string
	Name       string
	Combinator Combinator
	Not        bool
	Items      []RuleItem
}

func (r *Rule) GetCombinator() Combinator { return r.Combinator }
func (r *Rule) GetNot() bool              { return r.Not }
func (r *Rule) GetItems() []RuleItem      { return r.Items }

// ItemKind discriminates the two RuleItem variants.
type ItemKind string

const (
	ItemCondition ItemKind = "condition"
	ItemGroup     ItemKind = "group"
)

// RuleItem is a tagged variant: either a *Condition (leaf) or a *Group
// (recursive inner node). Both are value types reachable only through this
// interface so that a tree walk never needs a type switch outside this
// package's helpers.
type RuleItem interface {
	Kind() ItemKind
	ruleItem()
}

// Condition is a leaf node: a single field compared against a value by an
// operator, optionally negated.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
	Not      bool
}

func (*Condition) Kind() ItemKind { return ItemCondition }
func (*Condition) ruleItem()      {}

// Group is an inner node: a nested Rule-shaped combination of items.
type Group struct {
	Combinator Combinator
	Not        bool
	Items      []RuleItem
}

func (*Group) Kind() ItemKind          { return ItemGroup }
func (*Group) ruleItem()               {}
func (g *Group) GetCombinator() Combinator { return g.Combinator }
func (g *Group) GetNot() bool              { return g.Not }
func (g *Group) GetItems() []RuleItem      { return g.Items }

// Walk invokes fn for every RuleItem in the tree rooted at r, including
// items nested inside Groups, in document order. It does not invoke fn for
// the root itself since the root carries no field/operator/value of its
// own.
func Walk(r GroupLike, fn func(item RuleItem)) {
	if r == nil {
		return
	}
	for _, item := range r.GetItems() {
		fn(item)
		if g, ok := item.(*Group); ok {
			Walk(g, fn)
		}
	}
}

// ReferencedFields returns the de-duplicated, order-preserving set of field
// names referenced anywhere in the tree rooted at r. This is what the
// Orchestrator hands to the Field Resolution Engine.
func ReferencedFields(r GroupLike) []string {
	seen := make(map[string]bool)
	var out []string
	Walk(r, func(item RuleItem) {
		if c, ok := item.(*Condition); ok {
			if !seen[c.Field] {
				seen[c.Field] = true
				out = append(out, c.Field)
			}
		}
	})
	return out
}

// --- JSON wire format ---
//
// The wire format uses no explicit discriminator field for RuleItem: an
// item with a non-empty/non-nil "items" array is a Group, everything else
// is a Condition — a Group just looks like a nested Rule.

type wireItem struct {
	// Condition fields
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`

	// Group fields
	Combinator string     `json:"combinator,omitempty"`
	Items      []wireItem `json:"items,omitempty"`

	Not bool `json:"not,omitempty"`
}

func (w wireItem) isGroup() bool {
	return w.Items != nil || (w.Combinator != "" && w.Field == "")
}

func (w wireItem) toRuleItem(diags *diag.Diagnostics) (RuleItem, error) {
	if w.isGroup() {
		comb, recognized := ParseCombinator(w.Combinator)
		if !recognized && w.Combinator != "" {
			*diags = diags.Warnf("unrecognized combinator",
				"combinator %q is not AND/OR, treating this group as AND", w.Combinator)
		}
		items := make([]RuleItem, 0, len(w.Items))
		for _, wi := range w.Items {
			item, err := wi.toRuleItem(diags)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return &Group{Combinator: comb, Not: w.Not, Items: items}, nil
	}
	op, ok := ParseOperator(w.Operator)
	if !ok {
		return nil, fmt.Errorf("ruletypes: unrecognized operator %q", w.Operator)
	}
	return &Condition{Field: w.Field, Operator: op, Value: w.Value, Not: w.Not}, nil
}

func fromRuleItem(item RuleItem) wireItem {
	switch v := item.(type) {
	case *Condition:
		return wireItem{Field: v.Field, Operator: string(v.Operator), Value: v.Value, Not: v.Not}
	case *Group:
		items := make([]wireItem, 0, len(v.Items))
		for _, it := range v.Items {
			items = append(items, fromRuleItem(it))
		}
		return wireItem{Combinator: string(v.Combinator), Not: v.Not, Items: items}
	default:
		return wireItem{}
	}
}

// ParseRule decodes a serialized rule definition into a Rule tree. An
// empty or null items list is valid (evaluates to true); an unparseable
// operator is returned to the caller as an error (a plain error, not a
// diag.EngineError) rather than silently dropped, since this happens at load time, not
// evaluation time. An unrecognized combinator anywhere in the tree falls
// back to AND and is recorded in the returned Diagnostics rather than
// dropped silently.
func ParseRule(data []byte) (*Rule, diag.Diagnostics, error) {
	var doc struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		Combinator string     `json:"combinator"`
		Not        bool       `json:"not"`
		Items      []wireItem `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("ruletypes: parse rule: %w", err)
	}
	var diags diag.Diagnostics
	comb, recognized := ParseCombinator(doc.Combinator)
	if !recognized && doc.Combinator != "" {
		diags = diags.Warnf("unrecognized combinator",
			"combinator %q is not AND/OR, treating rule %q as AND", doc.Combinator, doc.Name)
	}
	items := make([]RuleItem, 0, len(doc.Items))
	for _, wi := range doc.Items {
		item, err := wi.toRuleItem(&diags)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}
	return &Rule{ID: doc.ID, Name: doc.Name, Combinator: comb, Not: doc.Not, Items: items}, diags, nil
}

// MarshalRule serializes a Rule back to its wire format. Used mainly by
// tests and by stores that round-trip rules through the core.
func MarshalRule(r *Rule) ([]byte, error) {
	items := make([]wireItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, fromRuleItem(it))
	}
	doc := struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		Combinator string     `json:"combinator"`
		Not        bool       `json:"not,omitempty"`
		Items      []wireItem `json:"items"`
	}{ID: r.ID, Name: r.Name, Combinator: string(r.Combinator), Not: r.Not, Items: items}
	return json.Marshal(doc)
}
