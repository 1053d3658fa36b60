// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package rulesengine is the composition root: New wires the Value
// Comparator, Field Mapper, Calculator Runtime, Dependency Analyzer, Rule
// Evaluator, Data Service Client, Field Resolution Engine, and Rule
// Execution Orchestrator into one Engine: DI container becomes explicit
// constructor wiring — there is no framework here, just ordinary Go
// constructors passed to each other.
package rulesengine

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/ankitjan/rulesengine/internal/calc"
	"github.com/ankitjan/rulesengine/internal/dataservice"
	"github.com/ankitjan/rulesengine/internal/metrics"
	"github.com/ankitjan/rulesengine/internal/orchestrator"
	"github.com/ankitjan/rulesengine/internal/resolution"
	"github.com/ankitjan/rulesengine/internal/ruletypes"
	"github.com/ankitjan/rulesengine/internal/store"
)

// Engine is the public entry point: load rules by ID or supply them
// inline, execute singly or in batch, and validate rule definitions
// before storing them.
type Engine struct {
	orch *orchestrator.Orchestrator
}

// Config collects the external collaborators and options an Engine is
// built from.
type Config struct {
	RuleStore        store.RuleStore
	FieldConfigStore store.FieldConfigStore
	EntityTypeStore  store.EntityTypeStore // optional

	CustomCalculators calc.CustomCalculatorLoader // optional, defaults to none registered
	MetricsSink       metrics.Sink                // optional, defaults to no-op
	Cache             resolution.Cache            // optional, defaults to no-op
	Logger            hclog.Logger                // optional, defaults to discarding
	Concurrency       int                         // optional, defaults to 8
	Fetcher           resolution.DataFetcher      // optional, defaults to the HTTP dataservice.Client
}

// New constructs an Engine from cfg. RuleStore and FieldConfigStore are
// required; every other field is optional and carries a sensible default.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	sink := cfg.MetricsSink
	if sink == nil {
		sink = metrics.NoopSink{}
	}

	calculator := calc.NewRuntime(cfg.CustomCalculators)
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = dataservice.New(logger)
	}

	resolverOpts := []resolution.Option{resolution.WithMetrics(sink)}
	if cfg.Concurrency > 0 {
		resolverOpts = append(resolverOpts, resolution.WithConcurrency(cfg.Concurrency))
	}
	if cfg.Cache != nil {
		resolverOpts = append(resolverOpts, resolution.WithCache(cfg.Cache))
	}
	resolver := resolution.New(fetcher, calculator, resolverOpts...)

	orchOpts := []orchestrator.Option{orchestrator.WithMetrics(sink), orchestrator.WithLogger(logger)}
	if cfg.EntityTypeStore != nil {
		orchOpts = append(orchOpts, orchestrator.WithEntityTypeStore(cfg.EntityTypeStore))
	}
	orch := orchestrator.New(cfg.RuleStore, cfg.FieldConfigStore, resolver, orchOpts...)

	return &Engine{orch: orch}
}

// ExecuteRule loads and evaluates one rule by ID.
func (e *Engine) ExecuteRule(ctx context.Context, ruleID string, execCtx orchestrator.ExecutionContext) *orchestrator.RuleExecutionResult {
	return e.orch.ExecuteRule(ctx, ruleID, execCtx)
}

// ExecuteWithDefinition evaluates an inline rule definition without
// consulting the rule store.
func (e *Engine) ExecuteWithDefinition(ctx context.Context, rule *ruletypes.Rule, execCtx orchestrator.ExecutionContext) *orchestrator.RuleExecutionResult {
	return e.orch.ExecuteWithDefinition(ctx, rule, execCtx)
}

// ExecuteBatch runs multiple rules by ID against one ExecutionContext.
func (e *Engine) ExecuteBatch(ctx context.Context, ruleIDs []string, execCtx orchestrator.ExecutionContext, opts orchestrator.BatchOptions) []*orchestrator.RuleExecutionResult {
	return e.orch.ExecuteBatch(ctx, ruleIDs, execCtx, opts)
}

// ExecuteRuleSet runs a named, ordered collection of rules.
func (e *Engine) ExecuteRuleSet(ctx context.Context, set orchestrator.RuleSet, execCtx orchestrator.ExecutionContext, opts orchestrator.BatchOptions) []*orchestrator.RuleExecutionResult {
	return e.orch.ExecuteRuleSet(ctx, set, execCtx, opts)
}

// Validate checks a rule definition's structural invariants without
// executing it.
func (e *Engine) Validate(ctx context.Context, rule *ruletypes.Rule) error {
	return e.orch.Validate(ctx, rule)
}

// ExplainDependencies renders the dependency graph behind a rule's
// referenced fields as Graphviz source, for operators debugging fetch
// ordering.
func (e *Engine) ExplainDependencies(ctx context.Context, rule *ruletypes.Rule) (string, error) {
	return e.orch.ExplainDependencies(ctx, rule)
}
