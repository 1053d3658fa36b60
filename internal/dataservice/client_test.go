// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package dataservice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rulesengine/internal/fieldmodel"
)

func TestSubstitutePlaceholders(t *testing.T) {
	out := substitutePlaceholders("/orders/{orderId}/details", map[string]any{"orderId": 42})
	assert.Equal(t, "/orders/42/details", out)

	out = substitutePlaceholders("/orders/{missing}", map[string]any{})
	assert.Equal(t, "/orders/{missing}", out)
}

func TestSubstitutePlaceholdersIgnoresJSONBraces(t *testing.T) {
	out := substitutePlaceholders(`{"customerId":"{customerId}","active":true}`, map[string]any{"customerId": "99"})
	assert.Equal(t, `{"customerId":"99","active":true}`, out)
}

func TestExecuteRESTSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/99", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"creditScore": 710})
	}))
	defer srv.Close()

	cfg := &fieldmodel.DataServiceConfig{
		Type:     fieldmodel.ServiceREST,
		Endpoint: srv.URL + "/customers/{customerId}",
		Method:   http.MethodGet,
		Auth:     fieldmodel.AuthConfig{Type: fieldmodel.AuthBearer, Token: "secret"},
	}
	c := New(nil)
	result, err := c.Execute(t.Context(), "customer", cfg, map[string]any{"customerId": 99})
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(710), m["creditScore"])
}

func TestExecuteRESTClientErrorNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := &fieldmodel.DataServiceConfig{Type: fieldmodel.ServiceREST, Endpoint: srv.URL, Method: http.MethodGet, MaxRetries: 3}
	c := New(nil)
	_, err := c.Execute(t.Context(), "f", cfg, nil)
	require.Error(t, err)
	assert.Equal(t, 1, hits, "4xx responses must not be retried")
}

func TestValidateConnectionSucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(nil)
	require.NoError(t, c.ValidateConnection(t.Context(), srv.URL, fieldmodel.AuthConfig{}))
}

func TestValidateConnectionFallsBackToGetWhenHeadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	require.NoError(t, c.ValidateConnection(t.Context(), srv.URL, fieldmodel.AuthConfig{}))
}

func TestValidateConnectionFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(nil)
	require.Error(t, c.ValidateConnection(t.Context(), srv.URL, fieldmodel.AuthConfig{}))
}

func TestExecuteGraphQLSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "customer")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"customer": map[string]any{"id": "99"}}})
	}))
	defer srv.Close()

	cfg := &fieldmodel.DataServiceConfig{
		Type: fieldmodel.ServiceGraphQL, Endpoint: srv.URL,
		Query: "query($id: ID!) { customer(id: $id) { id } }",
	}
	c := New(nil)
	result, err := c.Execute(t.Context(), "customer", cfg, map[string]any{"id": "99"})
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.NotNil(t, m["customer"])
}
