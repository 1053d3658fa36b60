// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"fmt"

	"github.com/ankitjan/rulesengine/internal/depgraph"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
	"github.com/ankitjan/rulesengine/internal/ruletypes"
)

// BatchOptions controls executeBatch's behavior.
type BatchOptions struct {
	// StopOnFirstFailure aborts the batch as soon as one rule's execution
	// returns a non-nil Error (not a false outcome — a false outcome is a
	// normal result, not a failure).
	StopOnFirstFailure bool
	IncludeTraces       bool
}

// ExecuteBatch runs every rule ID in order and returns one
// RuleExecutionResult per rule. With StopOnFirstFailure unset, this
// produces exactly the same per-rule outcomes as calling ExecuteRule
// individually.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, ruleIDs []string, execCtx ExecutionContext, opts BatchOptions) []*RuleExecutionResult {
	execCtx.IncludeTrace = execCtx.IncludeTrace || opts.IncludeTraces
	results := make([]*RuleExecutionResult, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		res := o.ExecuteRule(ctx, id, execCtx)
		results = append(results, res)
		if opts.StopOnFirstFailure && res.Error != nil {
			break
		}
	}
	return results
}

// RuleSet is a named, ordered collection of rule IDs, evaluated together
// by ExecuteRuleSet.
type RuleSet struct {
	Name    string
	RuleIDs []string
}

// ExecuteRuleSet is convenience sugar around ExecuteBatch for a named,
// pre-declared group of rules. It adds no new persistence concept: the
// rule set itself is just a name plus an ordered ID list, not a separate
// store.
func (o *Orchestrator) ExecuteRuleSet(ctx context.Context, set RuleSet, execCtx ExecutionContext, opts BatchOptions) []*RuleExecutionResult {
	return o.ExecuteBatch(ctx, set.RuleIDs, execCtx, opts)
}

// Validate checks a rule definition's structural invariants without
// executing it:
//   - every group (including the root) has a recognized combinator, and
//     every non-root group has at least one item;
//   - every condition has a field, a recognized operator, and a value
//     unless the operator is value-less (IS_EMPTY / IS_NOT_EMPTY);
//   - every referenced field resolves to a known FieldConfig, and the
//     operator is compatible with that field's declared type;
//   - the calculated-field dependency subgraph is acyclic.
func (o *Orchestrator) Validate(ctx context.Context, rule *ruletypes.Rule) error {
	if !rule.Combinator.Valid() {
		return fmt.Errorf("orchestrator: rule %q has an unrecognized combinator %q", rule.Name, rule.Combinator)
	}

	var malformed []string
	var invalidOps []string
	var missingValue []string
	ruletypes.Walk(rule, func(item ruletypes.RuleItem) {
		switch v := item.(type) {
		case *ruletypes.Group:
			if !v.Combinator.Valid() {
				malformed = append(malformed, fmt.Sprintf("group with unrecognized combinator %q", v.Combinator))
			}
			if len(v.Items) == 0 {
				malformed = append(malformed, "group with no items")
			}
		case *ruletypes.Condition:
			if v.Field == "" {
				malformed = append(malformed, "condition with no field")
			}
			if !v.Operator.Valid() {
				invalidOps = append(invalidOps, string(v.Operator))
				return
			}
			if v.Value == nil && !v.Operator.RequiresNoValue() {
				missingValue = append(missingValue, v.Field)
			}
		}
	})
	if len(malformed) > 0 {
		return fmt.Errorf("orchestrator: rule %q is structurally malformed: %v", rule.Name, malformed)
	}
	if len(invalidOps) > 0 {
		return fmt.Errorf("orchestrator: rule %q references unrecognized operators: %v", rule.Name, invalidOps)
	}
	if len(missingValue) > 0 {
		return fmt.Errorf("orchestrator: rule %q has conditions missing a value: %v", rule.Name, missingValue)
	}

	fieldNames := ruletypes.ReferencedFields(rule)
	known, err := o.loadFieldConfigs(ctx, fieldNames)
	if err != nil {
		return fmt.Errorf("orchestrator: loading field configurations for rule %q: %w", rule.Name, err)
	}
	var missing []string
	var incompatible []string
	ruletypes.Walk(rule, func(item ruletypes.RuleItem) {
		c, ok := item.(*ruletypes.Condition)
		if !ok {
			return
		}
		cfg, found := known[c.Field]
		if !found {
			missing = append(missing, c.Field)
			return
		}
		if !operatorCompatibleWithType(c.Operator, cfg.Type) {
			incompatible = append(incompatible, fmt.Sprintf("%s %s %s", c.Field, c.Operator, cfg.Type))
		}
	})
	if len(missing) > 0 {
		return fmt.Errorf("orchestrator: rule %q references unconfigured fields: %v", rule.Name, missing)
	}
	if len(incompatible) > 0 {
		return fmt.Errorf("orchestrator: rule %q has operator/field-type mismatches: %v", rule.Name, incompatible)
	}

	if cycle := calculatedFieldCycle(fieldNames, known); cycle != nil {
		return fmt.Errorf("orchestrator: rule %q has a circular calculated-field dependency: %v", rule.Name, cycle)
	}
	return nil
}

// operatorCompatibleWithType reports whether op may be used against a field
// declared as t. EQ/NE/IN/NOT_IN apply to any type since they only ever
// need an equality check; the remaining operators are meaningful only for
// specific shapes of value.
func operatorCompatibleWithType(op ruletypes.Operator, t fieldmodel.FieldType) bool {
	switch op {
	case ruletypes.OpEQ, ruletypes.OpNE, ruletypes.OpIn, ruletypes.OpNotIn:
		return true
	case ruletypes.OpLT, ruletypes.OpLE, ruletypes.OpGT, ruletypes.OpGE:
		return t == fieldmodel.TypeNumber || t == fieldmodel.TypeDate
	case ruletypes.OpContains, ruletypes.OpStartsWith, ruletypes.OpEndsWith:
		return t == fieldmodel.TypeString || t == fieldmodel.TypeArray
	case ruletypes.OpIsEmpty, ruletypes.OpIsNotEmpty:
		return t == fieldmodel.TypeString || t == fieldmodel.TypeArray || t == fieldmodel.TypeObject
	default:
		return false
	}
}

// calculatedFieldCycle builds the dependency subgraph reachable from
// fieldNames and runs DetectCycle proactively, so a circular calculated
// field is caught at validation time rather than only later when
// resolution builds its execution plan.
func calculatedFieldCycle(fieldNames []string, configs map[string]*fieldmodel.FieldConfig) []string {
	graph := depgraph.NewGraph()
	seen := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		graph.AddVertex(name)
		cfg := configs[name]
		if cfg == nil {
			return
		}
		for _, d := range cfg.Dependencies {
			graph.AddEdge(name, d)
			visit(d)
		}
		if cfg.DataServiceConfig != nil {
			for _, d := range cfg.DataServiceConfig.DependsOn {
				graph.AddEdge(name, d)
				visit(d)
			}
		}
	}
	for _, name := range fieldNames {
		visit(name)
	}
	return depgraph.DetectCycle(graph)
}

// ExplainDependencies renders the dependency graph behind a rule's
// referenced fields as Graphviz source, for debugging why fields resolve
// in a particular order.
func (o *Orchestrator) ExplainDependencies(ctx context.Context, rule *ruletypes.Rule) (string, error) {
	fieldNames := ruletypes.ReferencedFields(rule)
	configs, err := o.loadFieldConfigs(ctx, fieldNames)
	if err != nil {
		return "", err
	}
	return o.resolver.ExplainPlan(fieldNames, configs)
}
