// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/evaluator"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
	"github.com/ankitjan/rulesengine/internal/metrics"
	"github.com/ankitjan/rulesengine/internal/resolution"
	"github.com/ankitjan/rulesengine/internal/ruletypes"
	"github.com/ankitjan/rulesengine/internal/store"
)

// ExecutionContext supplies the entity identity, known input field
// values, and tracing preference for one rule execution.
type ExecutionContext struct {
	EntityID        string
	EntityType      string
	InputFieldValues map[string]any
	IncludeTrace    bool
}

// Trace is one node of the evaluator's execution trace, surfaced on
// RuleExecutionResult.
type Trace struct {
	Path        string
	Description string
	Result      bool
	Children    []Trace
}

// RuleExecutionResult is the terminal output of one rule execution:
// `{ ruleId, ruleName, outcome, error?, durationMs, traces, resolvedFieldValues }`.
type RuleExecutionResult struct {
	RuleID             string
	RuleName           string
	Outcome            bool
	Error              error
	DurationMs         int64
	Traces             []Trace
	ResolvedFieldValues map[string]any
	Diags              diag.Diagnostics
}

// Orchestrator is the Rule Execution Orchestrator (C8): the composition
// of the rule/field-config/entity-type stores, the resolution engine, and
// the rule evaluator into one `executeRule`-shaped entry point.
type Orchestrator struct {
	rules        store.RuleStore
	fieldConfigs store.FieldConfigStore
	entityTypes  store.EntityTypeStore
	resolver     *resolution.Engine
	metrics      metrics.Sink
	logger       hclog.Logger
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithEntityTypeStore(s store.EntityTypeStore) Option {
	return func(o *Orchestrator) { o.entityTypes = s }
}

func WithMetrics(sink metrics.Sink) Option {
	return func(o *Orchestrator) { o.metrics = sink }
}

func WithLogger(logger hclog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New constructs an Orchestrator wiring together the given stores and
// resolution engine — an explicit constructor-option composition root,
// no DI container or global registry involved.
func New(rules store.RuleStore, fieldConfigs store.FieldConfigStore, resolver *resolution.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rules: rules, fieldConfigs: fieldConfigs, resolver: resolver,
		metrics: metrics.NoopSink{}, logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteRule loads a rule by ID, resolves its referenced fields, and
// evaluates it.
func (o *Orchestrator) ExecuteRule(ctx context.Context, ruleID string, execCtx ExecutionContext) *RuleExecutionResult {
	state := StateLoaded
	start := time.Now()

	rule, err := o.rules.GetRuleByID(ctx, ruleID)
	if err != nil {
		state = transition(state, StateErrored)
		return o.errored(ruleID, "", start, diag.Wrap(diag.RuleNotFound, fmt.Sprintf("loading rule %q", ruleID), err))
	}
	return o.run(ctx, rule, execCtx, state, start)
}

// ExecuteWithDefinition evaluates an already-loaded rule definition
// directly, bypassing the rule store — callers may supply a rule
// definition inline for validation or ad hoc evaluation.
func (o *Orchestrator) ExecuteWithDefinition(ctx context.Context, rule *ruletypes.Rule, execCtx ExecutionContext) *RuleExecutionResult {
	return o.run(ctx, rule, execCtx, StateLoaded, time.Now())
}

func (o *Orchestrator) run(ctx context.Context, rule *ruletypes.Rule, execCtx ExecutionContext, state State, start time.Time) *RuleExecutionResult {
	state = transition(state, StateResolving)

	if err := o.checkEntityType(ctx, rule, execCtx); err != nil {
		o.logger.Warn("entity type validation produced a warning", "error", err)
	}

	fieldNames := ruletypes.ReferencedFields(rule)
	configs, err := o.loadFieldConfigs(ctx, fieldNames)
	if err != nil {
		state = transition(state, StateErrored)
		return o.errored(rule.ID, rule.Name, start, err)
	}

	cacheKey := resolutionCacheKey(execCtx.EntityID, execCtx.EntityType, fieldNames)
	resolved, err := o.resolver.Resolve(ctx, cacheKey, fieldNames, configs, execCtx.InputFieldValues)
	if err != nil {
		state = transition(state, StateErrored)
		return o.errored(rule.ID, rule.Name, start, err)
	}

	state = transition(state, StateEvaluating)

	var outcome bool
	var traces []Trace
	var evalDiags diag.Diagnostics
	if execCtx.IncludeTrace {
		res := evaluator.EvaluateWithTrace(rule, resolved.Values)
		outcome = res.Matched
		evalDiags = res.Diags
		if res.Trace != nil {
			traces = []Trace{convertTrace(res.Trace)}
		}
	} else {
		outcome, evalDiags = evaluator.Evaluate(rule, resolved.Values)
	}

	state = transition(state, StateDone)

	allDiags := resolved.Diags.Extend(evalDiags)
	var resultErr error
	if allDiags.HasErrors() {
		// A field failed to resolve and had no default to fall back on.
		// Resolution still completed and the evaluator still ran against
		// whatever values it got, so the outcome above stands; the rule
		// is reported as false-with-error rather than aborted.
		resultErr = diag.Wrap(diag.DataServiceFailure, fmt.Sprintf("rule %q evaluated with unresolved fields", rule.Name), nil)
	}

	o.metrics.Count("rule_executions", map[string]string{"rule": rule.Name, "outcome": fmt.Sprintf("%t", outcome)})
	o.metrics.Observe("rule_duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"rule": rule.Name})

	return &RuleExecutionResult{
		RuleID: rule.ID, RuleName: rule.Name, Outcome: outcome, Error: resultErr,
		DurationMs: time.Since(start).Milliseconds(), Traces: traces,
		ResolvedFieldValues: resolved.Values,
		Diags:               allDiags,
	}
}

func (o *Orchestrator) checkEntityType(ctx context.Context, rule *ruletypes.Rule, execCtx ExecutionContext) error {
	if o.entityTypes == nil || execCtx.EntityType == "" {
		return nil
	}
	entityType, err := o.entityTypes.FindByTypeName(ctx, execCtx.EntityType)
	if err != nil {
		return fmt.Errorf("entity type %q not found: %w", execCtx.EntityType, err)
	}
	declared := make(map[string]bool, len(entityType.FieldNames))
	for _, f := range entityType.FieldNames {
		declared[f] = true
	}
	for _, f := range ruletypes.ReferencedFields(rule) {
		if !declared[f] {
			return fmt.Errorf("field %q is not declared on entity type %q", f, execCtx.EntityType)
		}
	}
	return nil
}

// loadFieldConfigs fetches the FieldConfig for every name in names, plus
// the transitive closure of their calculated-field Dependencies and
// data-service DependsOn, so the resolution engine and Validate always see
// the complete configuration library a rule actually needs, not just the
// fields its conditions mention directly.
func (o *Orchestrator) loadFieldConfigs(ctx context.Context, names []string) (map[string]*fieldmodel.FieldConfig, error) {
	out := make(map[string]*fieldmodel.FieldConfig)
	pending := append([]string(nil), names...)
	for len(pending) > 0 {
		configs, err := o.fieldConfigs.ListByNames(ctx, pending)
		if err != nil {
			return nil, diag.Wrap(diag.FieldConfigNotFound, "loading field configurations", err)
		}
		var next []string
		for _, c := range configs {
			if _, ok := out[c.Name]; ok {
				continue
			}
			out[c.Name] = c
			for _, d := range c.Dependencies {
				if _, ok := out[d]; !ok {
					next = append(next, d)
				}
			}
			if c.DataServiceConfig != nil {
				for _, d := range c.DataServiceConfig.DependsOn {
					if _, ok := out[d]; !ok {
						next = append(next, d)
					}
				}
			}
		}
		pending = next
	}
	return out, nil
}

func (o *Orchestrator) errored(ruleID, ruleName string, start time.Time, err error) *RuleExecutionResult {
	o.metrics.Count("rule_executions", map[string]string{"rule": ruleName, "outcome": "error"})
	return &RuleExecutionResult{
		RuleID: ruleID, RuleName: ruleName, Outcome: false, Error: err,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func resolutionCacheKey(entityID, entityType string, fieldNames []string) string {
	if entityID == "" {
		return ""
	}
	bucket := time.Now().Truncate(time.Minute).Unix()
	return fmt.Sprintf("%s|%s|%d|%v", entityType, entityID, bucket, fieldNames)
}

func convertTrace(t *evaluator.TraceNode) Trace {
	out := Trace{Path: t.Path, Description: t.Description, Result: t.Result}
	for _, c := range t.Children {
		out.Children = append(out.Children, convertTrace(c))
	}
	return out
}
