package oasql_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/oasql"
	"github.com/bjaus/oasql/contract"
)

const itemsContract = `
openapi: 3.0.3
info: {title: Items, version: "1"}
servers:
  - url: https://api.example.com/v1
paths:
  /items:
    get:
      operationId: searchItems
      parameters:
        - {name: ids, in: query, schema: {type: array, items: {type: integer}}}
        - {name: sort, in: query, schema: {type: string, enum: [asc, desc]}}
        - {name: since, in: query, schema: {type: string, format: date}}
      responses:
        "200": {description: ok}
    post:
      operationId: createItem
      parameters:
        - {name: dryRun, in: query, schema: {type: boolean}}
        - {name: X-Tenant, in: header, required: true, schema: {type: string, format: uuid}}
        - {name: session, in: cookie, schema: {type: string}}
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name, price]
              properties:
                name: {type: string, maxLength: 10}
                price: {type: number, minimum: 0}
                tags: {type: array, maxItems: 2, items: {type: string, enum: [a, b, c]}}
                owner:
                  type: object
                  nullable: true
                  properties:
                    email: {type: string, format: email}
                status: {type: string, default: draft}
      responses:
        "201": {description: created}
  /items/{id}:
    get:
      operationId: getItem
      parameters:
        - {name: id, in: path, required: true, schema: {type: integer, format: int32}}
      responses:
        "200": {description: ok}
  /items/latest:
    get:
      operationId: latestItem
      responses:
        "200": {description: ok}
`

const tenant = "6f1c2b1e-2f4a-4c4e-9a51-0d1c9a1e7b55"

// itemsRouter echoes the validated request of every operation.
func itemsRouter(t *testing.T) (*oasql.Router, *[]*oasql.Request) {
	t.Helper()

	c, err := contract.Parse([]byte(itemsContract))
	require.NoError(t, err)
	r := oasql.New(c, oasql.WithLogger(slog.New(slog.DiscardHandler)))

	var seen []*oasql.Request
	for _, op := range c.Operations() {
		require.NoError(t, r.Handle(op.ID, func(_ context.Context, req *oasql.Request) (any, error) {
			seen = append(seen, req)
			return nil, nil
		}))
	}
	return r, &seen
}

func TestValidate_accepts(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		method    string
		path      string
		header    http.Header
		body      string
		operation string
		params    map[string]any
		reqBody   any
	}{
		"query parameters": {
			method:    http.MethodGet,
			path:      "/v1/items?ids=1,2&ids=3&sort=asc&since=2024-01-31",
			operation: "searchItems",
			params: map[string]any{
				"ids":   []any{int64(1), int64(2), int64(3)},
				"sort":  "asc",
				"since": "2024-01-31",
			},
		},
		"no optional parameters": {
			method:    http.MethodGet,
			path:      "/v1/items",
			operation: "searchItems",
			params:    map[string]any{},
		},
		"path parameter": {
			method:    http.MethodGet,
			path:      "/v1/items/12",
			operation: "getItem",
			params:    map[string]any{"id": int64(12)},
		},
		"literal segment wins over parameter": {
			method:    http.MethodGet,
			path:      "/v1/items/latest",
			operation: "latestItem",
			params:    map[string]any{},
		},
		"header cookie and body": {
			method: http.MethodPost,
			path:   "/v1/items?dryRun=true",
			header: http.Header{
				"X-Tenant":     {tenant},
				"Cookie":       {"session=abc"},
				"Content-Type": {"application/json; charset=utf-8"},
			},
			body:      `{"name":"pen","price":2,"tags":["a"],"owner":null,"extra":{"k":1}}`,
			operation: "createItem",
			params:    map[string]any{"dryRun": true, "X-Tenant": tenant, "session": "abc"},
			reqBody: map[string]any{
				"name":   "pen",
				"price":  float64(2),
				"tags":   []any{"a"},
				"owner":  nil,
				"status": "draft",
				"extra":  map[string]any{"k": int64(1)},
			},
		},
		"json suffix media type": {
			method: http.MethodPost,
			path:   "/v1/items",
			header: http.Header{
				"X-Tenant":     {tenant},
				"Content-Type": {"application/vnd.items+json"},
			},
			body:      `{"name":"pen","price":0.5,"owner":{"email":"ada@example.com"}}`,
			operation: "createItem",
			params:    map[string]any{"X-Tenant": tenant},
			reqBody: map[string]any{
				"name":   "pen",
				"price":  0.5,
				"owner":  map[string]any{"email": "ada@example.com"},
				"status": "draft",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r, seen := itemsRouter(t)
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			for k, vs := range tc.header {
				req.Header[k] = vs
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code, rec.Body.String())
			require.Len(t, *seen, 1)
			got := (*seen)[0]
			assert.Equal(t, tc.operation, got.Operation.ID)
			assert.Equal(t, tc.params, got.Params)
			assert.Equal(t, tc.reqBody, got.Body)
		})
	}
}

func TestValidate_rejects(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		method string
		path   string
		header http.Header
		body   string
		errors []oasql.ValidationError
	}{
		"every invalid query parameter is reported": {
			method: http.MethodGet,
			path:   "/v1/items?ids=1,x&sort=up&since=31-01-2024",
			errors: []oasql.ValidationError{
				{Field: "ids", In: "query", Reason: "item 1 must be an integer"},
				{Field: "sort", In: "query", Reason: "must be one of asc, desc"},
				{Field: "since", In: "query", Reason: "must be a date (YYYY-MM-DD)"},
			},
		},
		"int32 overflow": {
			method: http.MethodGet,
			path:   "/v1/items/3000000000",
			errors: []oasql.ValidationError{{Field: "id", In: "path", Reason: "must be a 32-bit integer"}},
		},
		"header and body fields together": {
			method: http.MethodPost,
			path:   "/v1/items?dryRun=maybe",
			header: http.Header{"Content-Type": {"application/json"}},
			body:   `{"name":"much too long","price":-1,"tags":["a","z"],"owner":{"email":"nope"}}`,
			errors: []oasql.ValidationError{
				{Field: "dryRun", In: "query", Reason: "must be a boolean"},
				{Field: "X-Tenant", In: "header", Reason: "is required"},
				{Field: "body.name", In: "body", Reason: "must be at most 10 characters"},
				{Field: "body.price", In: "body", Reason: "must be >= 0"},
				{Field: "body.tags[1]", In: "body", Reason: "must be one of a, b, c"},
				{Field: "body.owner.email", In: "body", Reason: "must be an email address"},
			},
		},
		"bad uuid header and too many items": {
			method: http.MethodPost,
			path:   "/v1/items",
			header: http.Header{"X-Tenant": {"tenant-1"}, "Content-Type": {"application/json"}},
			body:   `{"name":"pen","price":1,"tags":["a","b","c"]}`,
			errors: []oasql.ValidationError{
				{Field: "X-Tenant", In: "header", Reason: "must be a UUID"},
				{Field: "body.tags", In: "body", Reason: "must have at most 2 items"},
			},
		},
		"null for a required field": {
			method: http.MethodPost,
			path:   "/v1/items",
			header: http.Header{"X-Tenant": {tenant}, "Content-Type": {"application/json"}},
			body:   `{"name":null,"price":1}`,
			errors: []oasql.ValidationError{{Field: "body.name", In: "body", Reason: "must not be null"}},
		},
		"body is not an object": {
			method: http.MethodPost,
			path:   "/v1/items",
			header: http.Header{"X-Tenant": {tenant}, "Content-Type": {"application/json"}},
			body:   `[1,2]`,
			errors: []oasql.ValidationError{{Field: "body", In: "body", Reason: "must be an object"}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r, seen := itemsRouter(t)
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			for k, vs := range tc.header {
				req.Header[k] = vs
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, *seen, "handler must not run")

			var pd oasql.ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
			assert.Equal(t, "request validation failed", pd.Detail)
			assert.Equal(t, tc.errors, pd.Errors)
		})
	}
}

func TestValidate_malformedJSON(t *testing.T) {
	t.Parallel()

	r, _ := itemsRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/items", strings.NewReader(`{"name":`))
	req.Header.Set("X-Tenant", tenant)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var pd oasql.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	require.Len(t, pd.Errors, 1)
	assert.Equal(t, "body", pd.Errors[0].Field)
	assert.True(t, strings.HasPrefix(pd.Errors[0].Reason, "malformed JSON"), pd.Errors[0].Reason)
}

func TestValidate_basePath(t *testing.T) {
	t.Parallel()

	r, _ := itemsRouter(t)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/items/1").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/v10/items/1").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/items/1/").Code)
}
