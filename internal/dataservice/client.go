// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package dataservice implements the Data Service Client: executing REST
// and GraphQL field-fetch calls against externally configured endpoints,
// with auth header application, retry/backoff, and tracing, in the
// pooled-transport-plus-retry style used elsewhere in this module's HTTP
// clients.
package dataservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ankitjan/rulesengine/internal/diag"
	"github.com/ankitjan/rulesengine/internal/fieldmodel"
)

var tracer = otel.Tracer("github.com/ankitjan/rulesengine/internal/dataservice")

// Client executes DataServiceConfig invocations over HTTP. It owns one
// pooled, retrying transport shared across every field fetch: a
// cleanhttp pooled client wrapped for retry policy, with one tracing span
// per Execute call covering all of its attempts.
type Client struct {
	http   *retryablehttp.Client
	logger hclog.Logger
}

// New constructs a Client. logger defaults to a discarding logger when nil.
func New(logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	rc.Logger = hclogAdapter{logger.Named("dataservice")}
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 30 * time.Second
	rc.CheckRetry = checkRetry
	return &Client{http: rc, logger: logger}
}

// checkRetry retries on transport errors and 5xx responses, but never on
// 4xx: client errors are not retried, only transient/server failures are.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == 0 {
		return false, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// Execute runs one data-service invocation and returns its parsed JSON
// response as a map/list/scalar tree. parameters supplies values
// for placeholder substitution in REST URLs/bodies and GraphQL variables.
func (c *Client) Execute(ctx context.Context, name string, cfg *fieldmodel.DataServiceConfig, parameters map[string]any) (any, error) {
	ctx, span := tracer.Start(ctx, "dataservice.Execute",
		trace.WithAttributes(
			attribute.String("rulesengine.field", name),
			attribute.String("rulesengine.service_type", string(cfg.Type)),
			attribute.String("rulesengine.endpoint", cfg.Endpoint),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	c.http.RetryMax = cfg.Retries()

	var (
		body   []byte
		err    error
		status int
	)
	switch cfg.Type {
	case fieldmodel.ServiceGraphQL:
		body, status, err = c.executeGraphQL(ctx, cfg, parameters)
	case fieldmodel.ServiceREST:
		body, status, err = c.executeREST(ctx, cfg, parameters)
	default:
		err = diag.New(diag.DataServiceFailure, fmt.Sprintf("unrecognized service type %q for field %q", cfg.Type, name))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, diag.Wrap(diag.DataServiceFailure, fmt.Sprintf("fetching field %q", name), err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	var parsed any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, diag.Wrap(diag.DataServiceFailure, fmt.Sprintf("parsing response for field %q", name), err)
		}
	}
	return parsed, nil
}

// ValidateConnection issues a lightweight HEAD request against endpoint
// (falling back to GET if the service rejects HEAD outright) with auth
// applied, and reports whether the endpoint is reachable. It succeeds on
// any 2xx response; anything else, including a transport failure, is
// returned as a DataServiceFailure. Used at field-configuration time to
// confirm a data-service endpoint is live before a rule ever depends on
// it, independent of any particular field's request shape.
func (c *Client) ValidateConnection(ctx context.Context, endpoint string, auth fieldmodel.AuthConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status, err := c.probe(ctx, http.MethodHead, endpoint, auth)
	if err != nil || status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, err = c.probe(ctx, http.MethodGet, endpoint, auth)
	}
	if err != nil {
		return diag.Wrap(diag.DataServiceFailure, fmt.Sprintf("validating connection to %q", endpoint), err)
	}
	if status < 200 || status >= 300 {
		return diag.New(diag.DataServiceFailure, fmt.Sprintf("endpoint %q returned status %d", endpoint, status))
	}
	return nil
}

func (c *Client) probe(ctx context.Context, method, endpoint string, auth fieldmodel.AuthConfig) (int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, err
	}
	applyAuth(req.Request, auth)
	resp, err := c.http.HTTPClient.Do(req.Request)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) executeREST(ctx context.Context, cfg *fieldmodel.DataServiceConfig, parameters map[string]any) ([]byte, int, error) {
	url := substitutePlaceholders(cfg.Endpoint, parameters)
	var reqBody io.Reader
	method := strings.ToUpper(cfg.Method)
	if method != "" && method != http.MethodGet && method != http.MethodHead && cfg.RequestBody != "" {
		reqBody = strings.NewReader(substitutePlaceholders(cfg.RequestBody, parameters))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, substitutePlaceholders(v, parameters))
	}
	applyQueryParams(req, cfg.QueryParams, parameters)
	applyAuth(req.Request, cfg.Auth)

	return c.do(req)
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) executeGraphQL(ctx context.Context, cfg *fieldmodel.DataServiceConfig, parameters map[string]any) ([]byte, int, error) {
	payload := graphqlRequest{Query: cfg.Query, Variables: parameters, OperationName: cfg.OperationName}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, substitutePlaceholders(v, parameters))
	}
	applyAuth(req.Request, cfg.Auth)

	body, status, err := c.do(req)
	if err != nil {
		return nil, status, err
	}

	var gql graphqlResponse
	if err := json.Unmarshal(body, &gql); err != nil {
		return nil, status, err
	}
	if len(gql.Errors) > 0 {
		return nil, status, fmt.Errorf("graphql errors: %s", gql.Errors[0].Message)
	}
	return gql.Data, status, nil
}

func (c *Client) do(req *retryablehttp.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, fmt.Errorf("data service returned status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func applyQueryParams(req *retryablehttp.Request, params map[string]string, parameters map[string]any) {
	if len(params) == 0 {
		return
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, substitutePlaceholders(v, parameters))
	}
	req.URL.RawQuery = q.Encode()
}

func applyAuth(req *http.Request, auth fieldmodel.AuthConfig) {
	switch auth.Type {
	case fieldmodel.AuthNone, "":
	case fieldmodel.AuthAPIKey:
		if auth.Header != "" {
			req.Header.Set(auth.Header, auth.Value)
		}
	case fieldmodel.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case fieldmodel.AuthBasic:
		req.SetBasicAuth(auth.User, auth.Password)
	case fieldmodel.AuthOAuth:
		req.Header.Set("Authorization", auth.EffectiveTokenType()+" "+auth.Token)
	}
}

// substitutePlaceholders replaces {paramName} tokens in s with the string
// form of parameters[paramName], leaving unmatched tokens as-is: missing
// interpolation values are not fatal, the literal token is sent through
// rather than aborting the fetch. A brace pair is only treated as a
// placeholder when its contents look like a bare identifier — this keeps
// literal JSON object braces in a REST request body untouched.
func substitutePlaceholders(s string, parameters map[string]any) string {
	if !strings.Contains(s, "{") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.IndexByte(s, '{')
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start
		key := s[start+1 : end]
		if !isPlaceholderKey(key) {
			b.WriteString(s[:start+1])
			s = s[start+1:]
			continue
		}
		b.WriteString(s[:start])
		if v, ok := parameters[key]; ok {
			fmt.Fprintf(&b, "%v", v)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	return b.String()
}

// isPlaceholderKey reports whether key is a bare identifier, the only
// form substitutePlaceholders treats as a placeholder rather than
// incidental JSON punctuation.
func isPlaceholderKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// hclogAdapter satisfies retryablehttp.LeveledLogger via hclog.Logger.
type hclogAdapter struct {
	hclog.Logger
}

func (a hclogAdapter) Error(msg string, keysAndValues ...any) { a.Logger.Error(msg, keysAndValues...) }
func (a hclogAdapter) Info(msg string, keysAndValues ...any)  { a.Logger.Info(msg, keysAndValues...) }
func (a hclogAdapter) Debug(msg string, keysAndValues ...any) { a.Logger.Debug(msg, keysAndValues...) }
func (a hclogAdapter) Warn(msg string, keysAndValues ...any)  { a.Logger.Warn(msg, keysAndValues...) }
