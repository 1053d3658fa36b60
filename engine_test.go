// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package rulesengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rulesengine/internal/dataservice"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
	"github.com/ankitjan/rulesengine/internal/orchestrator"
	"github.com/ankitjan/rulesengine/internal/ruletypes"
	"github.com/ankitjan/rulesengine/internal/store"
)

type memRuleStore struct{ rules map[string]*ruletypes.Rule }

func (s *memRuleStore) GetRuleByID(_ context.Context, id string) (*ruletypes.Rule, error) {
	r, ok := s.rules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}
func (s *memRuleStore) FindRuleByName(_ context.Context, name string) (*ruletypes.Rule, error) {
	for _, r := range s.rules {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

type memFieldConfigStore struct{ configs map[string]*fieldmodel.FieldConfig }

func (s *memFieldConfigStore) ListByNames(_ context.Context, names []string) ([]*fieldmodel.FieldConfig, error) {
	out := make([]*fieldmodel.FieldConfig, 0, len(names))
	for _, n := range names {
		if c, ok := s.configs[n]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (s *memFieldConfigStore) FindByFieldName(_ context.Context, name string) (*fieldmodel.FieldConfig, error) {
	c, ok := s.configs[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func staticField(name string, t fieldmodel.FieldType) *fieldmodel.FieldConfig {
	return &fieldmodel.FieldConfig{Name: name, Type: t}
}

// TestEngineStaticArithmeticRule checks a single arithmetic rule over
// static, caller-supplied fields, no data-service calls involved.
func TestEngineStaticArithmeticRule(t *testing.T) {
	rule := &ruletypes.Rule{
		ID: "s1", Name: "adult", Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{&ruletypes.Condition{Field: "age", Operator: ruletypes.OpGT, Value: 18}},
	}
	engine := New(Config{
		RuleStore:        &memRuleStore{rules: map[string]*ruletypes.Rule{"s1": rule}},
		FieldConfigStore: &memFieldConfigStore{configs: map[string]*fieldmodel.FieldConfig{"age": staticField("age", fieldmodel.TypeNumber)}},
	})

	result := engine.ExecuteRule(context.Background(), "s1", orchestrator.ExecutionContext{
		InputFieldValues: map[string]any{"age": 25},
	})
	require.NoError(t, result.Error)
	assert.True(t, result.Outcome)
}

// TestEngineAndShortCircuitsTrace checks that short-circuit under AND
// means the second condition is never visited once the first is false,
// including when a trace is being recorded.
func TestEngineAndShortCircuitsTrace(t *testing.T) {
	rule := &ruletypes.Rule{
		ID: "s2", Name: "us-adult", Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{
			&ruletypes.Condition{Field: "country", Operator: ruletypes.OpEQ, Value: "US"},
			&ruletypes.Condition{Field: "age", Operator: ruletypes.OpGE, Value: 21},
		},
	}
	engine := New(Config{
		RuleStore: &memRuleStore{rules: map[string]*ruletypes.Rule{"s2": rule}},
		FieldConfigStore: &memFieldConfigStore{configs: map[string]*fieldmodel.FieldConfig{
			"country": staticField("country", fieldmodel.TypeString),
			"age":     staticField("age", fieldmodel.TypeNumber),
		}},
	})

	result := engine.ExecuteRule(context.Background(), "s2", orchestrator.ExecutionContext{
		InputFieldValues: map[string]any{"country": "CA", "age": 30},
		IncludeTrace:     true,
	})
	require.NoError(t, result.Error)
	assert.False(t, result.Outcome)
	require.Len(t, result.Traces, 1)
	assert.Len(t, result.Traces[0].Children, 1, "only the first condition should appear in the trace once AND short-circuits")
}

// TestEngineGraphQLFieldFetchedOnce checks a GRAPHQL-backed field mapped
// through a nested path, fetched exactly once.
func TestEngineGraphQLFieldFetchedOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"data":{"customer":{"creditScore":720}}}`))
	}))
	defer srv.Close()

	rule := &ruletypes.Rule{
		ID: "s3", Name: "creditworthy", Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{&ruletypes.Condition{Field: "creditScore", Operator: ruletypes.OpGE, Value: 700}},
	}
	creditScore := &fieldmodel.FieldConfig{
		Name: "creditScore", Type: fieldmodel.TypeNumber,
		DataServiceConfig: &fieldmodel.DataServiceConfig{Type: fieldmodel.ServiceGraphQL, Endpoint: srv.URL, Query: "query { customer { creditScore } }"},
		MapperExpression:  "customer.creditScore",
	}
	engine := New(Config{
		RuleStore:        &memRuleStore{rules: map[string]*ruletypes.Rule{"s3": rule}},
		FieldConfigStore: &memFieldConfigStore{configs: map[string]*fieldmodel.FieldConfig{"creditScore": creditScore}},
		Fetcher:          dataservice.New(nil),
	})

	result := engine.ExecuteRule(context.Background(), "s3", orchestrator.ExecutionContext{EntityID: "cust-1"})
	require.NoError(t, result.Error)
	assert.True(t, result.Outcome)
	assert.Equal(t, float64(720), result.ResolvedFieldValues["creditScore"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

// TestEngineCalculatedFieldOverParallelFetches checks a calculated field
// over two parallel-fetched REST fields.
func TestEngineCalculatedFieldOverParallelFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subtotal":
			w.Write([]byte(`{"value":80}`))
		case "/taxRate":
			w.Write([]byte(`{"value":0.10}`))
		}
	}))
	defer srv.Close()

	rule := &ruletypes.Rule{
		ID: "s4", Name: "within-budget", Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{&ruletypes.Condition{Field: "total", Operator: ruletypes.OpLE, Value: 100.0}},
	}
	configs := map[string]*fieldmodel.FieldConfig{
		"subtotal": {
			Name: "subtotal", Type: fieldmodel.TypeNumber,
			DataServiceConfig: &fieldmodel.DataServiceConfig{Type: fieldmodel.ServiceREST, Endpoint: srv.URL + "/subtotal", Method: http.MethodGet},
			MapperExpression:  "value",
		},
		"taxRate": {
			Name: "taxRate", Type: fieldmodel.TypeNumber,
			DataServiceConfig: &fieldmodel.DataServiceConfig{Type: fieldmodel.ServiceREST, Endpoint: srv.URL + "/taxRate", Method: http.MethodGet},
			MapperExpression:  "value",
		},
		"total": {
			Name: "total", Type: fieldmodel.TypeNumber, IsCalculated: true,
			CalculatorConfig: &fieldmodel.CalculatorConfig{Type: fieldmodel.CalcExpression, Expression: "subtotal * (1 + taxRate)"},
			Dependencies:     []string{"subtotal", "taxRate"},
		},
	}
	engine := New(Config{
		RuleStore:        &memRuleStore{rules: map[string]*ruletypes.Rule{"s4": rule}},
		FieldConfigStore: &memFieldConfigStore{configs: configs},
		Fetcher:          dataservice.New(nil),
	})

	result := engine.ExecuteRule(context.Background(), "s4", orchestrator.ExecutionContext{EntityID: "order-1"})
	require.NoError(t, result.Error)
	assert.True(t, result.Outcome)
	assert.InDelta(t, 88.0, result.ResolvedFieldValues["total"], 0.001)
}

// TestEngineCircularCalculatedFieldsRejected checks that three calculated
// fields forming a cycle are rejected with CircularDependency.
func TestEngineCircularCalculatedFieldsRejected(t *testing.T) {
	rule := &ruletypes.Rule{
		ID: "s5", Name: "cyclic", Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{&ruletypes.Condition{Field: "a", Operator: ruletypes.OpEQ, Value: 1}},
	}
	calc := func(name, expr string, deps ...string) *fieldmodel.FieldConfig {
		return &fieldmodel.FieldConfig{
			Name: name, Type: fieldmodel.TypeNumber, IsCalculated: true,
			CalculatorConfig: &fieldmodel.CalculatorConfig{Type: fieldmodel.CalcExpression, Expression: expr},
			Dependencies:     deps,
		}
	}
	configs := map[string]*fieldmodel.FieldConfig{
		"a": calc("a", "b", "b"),
		"b": calc("b", "c", "c"),
		"c": calc("c", "a", "a"),
	}
	engine := New(Config{
		RuleStore:        &memRuleStore{rules: map[string]*ruletypes.Rule{"s5": rule}},
		FieldConfigStore: &memFieldConfigStore{configs: configs},
	})

	result := engine.ExecuteRule(context.Background(), "s5", orchestrator.ExecutionContext{})
	require.Error(t, result.Error)
	assert.False(t, result.Outcome)
}

// TestEngineRequiredFieldFetchExhaustsRetries checks that a required
// field whose data service fails on every attempt surfaces a false
// outcome with an error, after exhausting retries.
func TestEngineRequiredFieldFetchExhaustsRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rule := &ruletypes.Rule{
		ID: "s6", Name: "kyc-check", Combinator: ruletypes.And,
		Items: []ruletypes.RuleItem{&ruletypes.Condition{Field: "kyc", Operator: ruletypes.OpEQ, Value: true}},
	}
	kyc := &fieldmodel.FieldConfig{
		Name: "kyc", Type: fieldmodel.TypeBoolean, IsRequired: true,
		DataServiceConfig: &fieldmodel.DataServiceConfig{Type: fieldmodel.ServiceREST, Endpoint: srv.URL, Method: http.MethodGet, MaxRetries: 2},
		MapperExpression:  "value",
	}
	engine := New(Config{
		RuleStore:        &memRuleStore{rules: map[string]*ruletypes.Rule{"s6": rule}},
		FieldConfigStore: &memFieldConfigStore{configs: map[string]*fieldmodel.FieldConfig{"kyc": kyc}},
		Fetcher:          dataservice.New(nil),
	})

	result := engine.ExecuteRule(context.Background(), "s6", orchestrator.ExecutionContext{})
	require.Error(t, result.Error)
	assert.False(t, result.Outcome)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&attempts)), 2)
}
