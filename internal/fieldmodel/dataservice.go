// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package fieldmodel

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServiceType discriminates the DataServiceConfig variants. The wire field
// name "serviceType" must be preserved for compatibility with existing
// stored configurations.
type ServiceType string

const (
	ServiceGraphQL ServiceType = "GRAPHQL"
	ServiceREST    ServiceType = "REST"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// DataServiceConfig is the tagged variant `{ type: GRAPHQL | REST, ... }`.
// Rather than two Go types behind an interface, this is one struct with
// optional GraphQL/REST-only fields populated according to Type: deep
// inheritance collapses to a flat struct with a discriminator, since every
// caller needs to branch on Type anyway and Go lacks sum types.
type DataServiceConfig struct {
	Type       ServiceType
	Endpoint   string
	TimeoutMs  int
	MaxRetries int
	Auth       AuthConfig

	// GraphQL-only
	Query         string
	OperationName string

	// REST-only
	Method      string
	Headers     map[string]string
	QueryParams map[string]string
	RequestBody string

	// DependsOn lists additional field names this data-service invocation
	// depends on beyond the field's own Dependencies list: e.g. a REST
	// call whose URL or body interpolates another field's value.
	DependsOn []string
}

// Timeout returns the configured timeout, defaulting to 30s.
func (d *DataServiceConfig) Timeout() time.Duration {
	if d.TimeoutMs <= 0 {
		return defaultTimeout
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// Retries returns the configured max retry count, defaulting to 3.
func (d *DataServiceConfig) Retries() int {
	if d.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return d.MaxRetries
}

func (d *DataServiceConfig) Validate() error {
	switch d.Type {
	case ServiceGraphQL:
		if d.Query == "" {
			return fmt.Errorf("fieldmodel: GRAPHQL data service at %q requires query", d.Endpoint)
		}
	case ServiceREST:
		if d.Method == "" {
			return fmt.Errorf("fieldmodel: REST data service at %q requires method", d.Endpoint)
		}
	default:
		return fmt.Errorf("fieldmodel: unrecognized data service type %q", d.Type)
	}
	return nil
}

// AuthType discriminates the AuthConfig variants.
type AuthType string

const (
	AuthNone   AuthType = "NONE"
	AuthAPIKey AuthType = "API_KEY"
	AuthBearer AuthType = "BEARER"
	AuthBasic  AuthType = "BASIC"
	AuthOAuth  AuthType = "OAUTH"
)

// AuthConfig is the tagged variant `{ NONE, API_KEY(header,value),
// BEARER(token), BASIC(user,pass), OAUTH(token, tokenType) }`.
type AuthConfig struct {
	Type AuthType

	// API_KEY
	Header string
	Value  string

	// BEARER / OAUTH
	Token string

	// BASIC
	User     string
	Password string

	// OAUTH
	TokenType string // defaults to "Bearer"
}

// EffectiveTokenType returns TokenType, defaulting to "Bearer" for OAUTH.
func (a AuthConfig) EffectiveTokenType() string {
	if a.TokenType == "" {
		return "Bearer"
	}
	return a.TokenType
}

// --- JSON wire format ---

type wireAuth struct {
	Type      string `json:"type"`
	Header    string `json:"header,omitempty"`
	Value     string `json:"value,omitempty"`
	Token     string `json:"token,omitempty"`
	User      string `json:"user,omitempty"`
	Password  string `json:"password,omitempty"`
	TokenType string `json:"tokenType,omitempty"`
}

func (a AuthConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAuth{
		Type: string(a.Type), Header: a.Header, Value: a.Value,
		Token: a.Token, User: a.User, Password: a.Password, TokenType: a.TokenType,
	})
}

func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	var w wireAuth
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = AuthConfig{
		Type: AuthType(w.Type), Header: w.Header, Value: w.Value,
		Token: w.Token, User: w.User, Password: w.Password, TokenType: w.TokenType,
	}
	if a.Type == "" {
		a.Type = AuthNone
	}
	return nil
}

type wireDataServiceConfig struct {
	ServiceType   string            `json:"serviceType"`
	Endpoint      string            `json:"endpoint"`
	TimeoutMs     int               `json:"timeoutMs,omitempty"`
	MaxRetries    int               `json:"maxRetries,omitempty"`
	Auth          *AuthConfig       `json:"auth,omitempty"`
	Query         string            `json:"query,omitempty"`
	OperationName string            `json:"operationName,omitempty"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	QueryParams   map[string]string `json:"queryParams,omitempty"`
	RequestBody   string            `json:"requestBody,omitempty"`
	DependsOn     []string          `json:"dependsOn,omitempty"`
}

func (d DataServiceConfig) MarshalJSON() ([]byte, error) {
	w := wireDataServiceConfig{
		ServiceType: string(d.Type), Endpoint: d.Endpoint, TimeoutMs: d.TimeoutMs,
		MaxRetries: d.MaxRetries, Auth: &d.Auth, Query: d.Query, OperationName: d.OperationName,
		Method: d.Method, Headers: d.Headers, QueryParams: d.QueryParams,
		RequestBody: d.RequestBody, DependsOn: d.DependsOn,
	}
	return json.Marshal(w)
}

func (d *DataServiceConfig) UnmarshalJSON(data []byte) error {
	var w wireDataServiceConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = DataServiceConfig{
		Type: ServiceType(w.ServiceType), Endpoint: w.Endpoint, TimeoutMs: w.TimeoutMs,
		MaxRetries: w.MaxRetries, Query: w.Query, OperationName: w.OperationName,
		Method: w.Method, Headers: w.Headers, QueryParams: w.QueryParams,
		RequestBody: w.RequestBody, DependsOn: w.DependsOn,
	}
	if w.Auth != nil {
		d.Auth = *w.Auth
	} else {
		d.Auth = AuthConfig{Type: AuthNone}
	}
	return nil
}
