// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package resolution turns a set of requested field names into their
// resolved values by building a FieldResolutionPlan (internal/depgraph)
// and then executing it — static fields first, fetched fields in their
// parallel/sequential order, and calculated fields last in topological
// order.
package resolution

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ankitjan/rulesengine/internal/calc"
	"github.com/ankitjan/rulesengine/internal/depgraph"
	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/fieldmapper"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
	"github.com/ankitjan/rulesengine/internal/metrics"
)

// DataFetcher executes one field's DataServiceConfig and returns the raw,
// unmapped response. The resolution engine only depends on this narrow
// interface, not the concrete dataservice.Client, so it can be exercised
// with fakes in tests.
type DataFetcher interface {
	Execute(ctx context.Context, fieldName string, cfg *fieldmodel.DataServiceConfig, parameters map[string]any) (any, error)
}

// Cache stores a completed Resolve result keyed by a caller-computed
// execution key (typically entity identity + field set + a coarse time
// bucket). A cache hit means Resolve issues zero additional data-service
// calls.
type Cache interface {
	Get(key string) (*Result, bool)
	Set(key string, result *Result)
}

// NoopCache never hits, so every Resolve call fetches fresh.
type NoopCache struct{}

func (NoopCache) Get(string) (*Result, bool) { return nil, false }
func (NoopCache) Set(string, *Result)        {}

// Engine resolves field values for one entity against a library of
// FieldConfigs obtained from the field-config store.
type Engine struct {
	fetcher     DataFetcher
	calculator  *calc.Runtime
	metrics     metrics.Sink
	concurrency int
	cache       Cache
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithConcurrency bounds how many fetched fields run in flight at once
// within a single ParallelGroup. Defaults to 8.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMetrics attaches a metrics.Sink; defaults to metrics.NoopSink.
func WithMetrics(sink metrics.Sink) Option {
	return func(e *Engine) { e.metrics = sink }
}

// WithCache attaches a per-execution result Cache; defaults to NoopCache.
func WithCache(cache Cache) Option {
	return func(e *Engine) { e.cache = cache }
}

// New constructs a resolution Engine.
func New(fetcher DataFetcher, calculator *calc.Runtime, opts ...Option) *Engine {
	e := &Engine{fetcher: fetcher, calculator: calculator, metrics: metrics.NoopSink{}, concurrency: 8, cache: NoopCache{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one Resolve call: the resolved field values
// plus any non-fatal diagnostics accumulated along the way.
type Result struct {
	Values map[string]any
	Diags  diag.Diagnostics
}

// run carries the mutable state of a single Resolve call. A fresh
// singleflight.Group per call means identical in-flight fetches collapse
// to one request within this execution only, never across unrelated
// executions sharing the same Engine.
type run struct {
	mu       sync.Mutex
	values   map[string]any
	diags    diag.Diagnostics
	inflight singleflight.Group
}

func (r *run) snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *run) set(name string, v any) {
	r.mu.Lock()
	r.values[name] = v
	r.mu.Unlock()
}

func (r *run) addDiag(sev diag.Severity, summary, detail string) {
	r.mu.Lock()
	r.diags = r.diags.Append(sev, summary, detail)
	r.mu.Unlock()
}

// degradeFetchFailure records that name's fetch failed and decides whether
// resolution can still proceed for this field: a required field with no
// configured default becomes a field-level error (the field is left
// unresolved so the evaluator sees it missing); anything else falls back to
// the field's default value, or nil if none is configured. Either way the
// caller continues resolving the remaining fields.
func (r *run) degradeFetchFailure(name string, cfg *fieldmodel.FieldConfig, err error) {
	if cfg.IsRequired && cfg.DefaultValue == nil {
		r.addDiag(diag.Error, fmt.Sprintf("failed to fetch required field %q", name), err.Error())
		return
	}
	r.set(name, cfg.DefaultValue)
	r.addDiag(diag.Warning, fmt.Sprintf("failed to fetch field %q, using default", name), err.Error())
}

// Resolve computes the value of every field in fieldNames (and any
// transitive dependency), given configs (the full field-configuration
// library relevant to this rule) and input (values already supplied by
// the caller, which are authoritative and bypass both fetch and
// calculation). cacheKey identifies this execution for cache purposes; an
// empty key disables caching for this call.
func (e *Engine) Resolve(ctx context.Context, cacheKey string, fieldNames []string, configs map[string]*fieldmodel.FieldConfig, input map[string]any) (*Result, error) {
	if cacheKey != "" {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	available := make(map[string]bool, len(input))
	for name := range input {
		available[name] = true
	}

	relevant, err := closure(fieldNames, configs)
	if err != nil {
		return nil, err
	}

	plan, err := depgraph.BuildPlan(relevant, available)
	if err != nil {
		return nil, err
	}

	r := &run{values: make(map[string]any, len(relevant)+len(input))}
	for k, v := range input {
		r.values[k] = v
	}

	for _, name := range plan.StaticFields {
		if _, ok := r.values[name]; ok {
			continue
		}
		cfg := relevant[name]
		if cfg == nil {
			continue
		}
		if cfg.DefaultValue != nil {
			r.values[name] = cfg.DefaultValue
			continue
		}
		if cfg.IsRequired {
			r.diags = r.diags.Append(diag.Error, "missing required field",
				fmt.Sprintf("field %q has no input value and no default", name))
		}
	}

	for _, elem := range plan.Elements {
		switch elem.Kind {
		case depgraph.ElementParallelGroup:
			if err := e.fetchGroup(ctx, elem.Fields, relevant, r); err != nil {
				return nil, err
			}
		case depgraph.ElementSequentialChain:
			if err := e.fetchChain(ctx, elem.Chain, relevant, r); err != nil {
				return nil, err
			}
		}
	}
	// Field-level fetch failures degrade to diagnostics above; resolution
	// always completes so the evaluator still runs against whatever values
	// were resolved.

	for _, name := range plan.CalculatedOrder {
		cfg := relevant[name]
		snapshot := r.snapshot()
		out, err := e.calculator.Evaluate(name, cfg.CalculatorConfig, cfg.Dependencies, snapshot)
		if err != nil {
			return nil, err
		}
		r.set(name, out)
		e.metrics.Count("field_calculated", map[string]string{"field": name})
	}

	result := &Result{Values: r.values, Diags: r.diags}
	if cacheKey != "" {
		e.cache.Set(cacheKey, result)
	}
	return result, nil
}

// ExplainPlan renders the dependency graph behind fieldNames as Graphviz
// source, for operators inspecting why fields fetch in a given order
// (the plan is otherwise opaque once Resolve returns only values).
func (e *Engine) ExplainPlan(fieldNames []string, configs map[string]*fieldmodel.FieldConfig) (string, error) {
	relevant, err := closure(fieldNames, configs)
	if err != nil {
		return "", err
	}
	graph := depgraph.NewGraph()
	for name, cfg := range relevant {
		graph.AddVertex(name)
		for _, d := range cfg.Dependencies {
			graph.AddEdge(name, d)
		}
		if cfg.DataServiceConfig != nil {
			for _, d := range cfg.DataServiceConfig.DependsOn {
				graph.AddEdge(name, d)
			}
		}
	}
	return depgraph.RenderGraphviz(graph), nil
}

// closure expands fieldNames to include every transitive dependency
// (data-service DependsOn included), looking each one up in configs. A
// referenced field with no configuration is a FieldConfigNotFound error.
func closure(fieldNames []string, configs map[string]*fieldmodel.FieldConfig) (map[string]*fieldmodel.FieldConfig, error) {
	out := make(map[string]*fieldmodel.FieldConfig)
	var visit func(name string) error
	visit = func(name string) error {
		if _, ok := out[name]; ok {
			return nil
		}
		cfg, ok := configs[name]
		if !ok {
			return diag.New(diag.FieldConfigNotFound, fmt.Sprintf("no field configuration for %q", name))
		}
		out[name] = cfg
		for _, d := range cfg.Dependencies {
			if err := visit(d); err != nil {
				return err
			}
		}
		if cfg.DataServiceConfig != nil {
			for _, d := range cfg.DataServiceConfig.DependsOn {
				if err := visit(d); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, name := range fieldNames {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fetchGroup resolves every field in a ParallelGroup concurrently, bounded
// by the engine's configured concurrency: mutually independent fetches run
// in parallel. A single field's fetch failure degrades that field alone
// (see degradeFetchFailure) and never aborts its siblings; fetchGroup only
// returns an error when ctx itself is done.
func (e *Engine) fetchGroup(ctx context.Context, fields []string, configs map[string]*fieldmodel.FieldConfig, r *run) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, name := range fields {
		name := name
		g.Go(func() error {
			return e.fetchOne(gctx, name, configs[name], r)
		})
	}
	return g.Wait()
}

// fetchChain resolves a SequentialChain in order, since each later field
// depends on an earlier one's just-fetched value. A failed link degrades
// to its default/null and the chain continues with whatever value that
// produced, rather than aborting the remaining links.
func (e *Engine) fetchChain(ctx context.Context, chain []string, configs map[string]*fieldmodel.FieldConfig, r *run) error {
	for _, name := range chain {
		if err := e.fetchOne(ctx, name, configs[name], r); err != nil {
			return err
		}
	}
	return nil
}

// fetchOne executes, maps, and type-converts a single field's fetch and
// stores the result directly into r. Concurrent callers requesting the
// same field within one Resolve call collapse onto a single in-flight
// request via r.inflight. A fetch, mapping, or conversion failure degrades
// the field per degradeFetchFailure rather than propagating; fetchOne only
// returns a non-nil error when ctx is done, so callers can still abort a
// genuinely cancelled resolution.
func (e *Engine) fetchOne(ctx context.Context, name string, cfg *fieldmodel.FieldConfig, r *run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err, _ := r.inflight.Do(name, func() (any, error) {
		params := r.snapshot()
		raw, err := e.fetcher.Execute(ctx, name, cfg.DataServiceConfig, params)
		if err == nil {
			var mapped any
			mapped, err = fieldmapper.Extract(raw, cfg.MapperExpression)
			if err == nil {
				var converted any
				converted, err = fieldmapper.ConvertType(mapped, cfg.Type)
				if err == nil {
					r.set(name, converted)
					e.metrics.Count("field_fetched", map[string]string{"field": name})
					return converted, nil
				}
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.metrics.Count("field_fetch_failed", map[string]string{"field": name})
		r.degradeFetchFailure(name, cfg, err)
		return nil, nil
	})
	return err
}
