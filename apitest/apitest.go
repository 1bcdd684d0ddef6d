// Package apitest runs requests against an oasql router over a real HTTP
// connection and decodes the JSON answers into typed values.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Client sends requests to a handler served by an httptest.Server.
type Client struct {
	Server *httptest.Server
}

// NewClient serves h until the test ends.
func NewClient(t testing.TB, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Client{Server: srv}
}

// Request is a request with a raw body. Use it for malformed bodies, other
// media types and custom headers.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header
}

// Response is an answer whose body was decoded as T. Body is nil when the
// answer was empty or not decodable as T; Bytes always holds the raw body.
type Response[T any] struct {
	Status  int
	Headers http.Header
	Body    *T
	Bytes   []byte
	Raw     *http.Response
}

// IsProblem reports whether the answer is an RFC 9457 problem document.
func (r *Response[T]) IsProblem() bool {
	mt, _, err := mime.ParseMediaType(r.Headers.Get("Content-Type"))
	return err == nil && mt == "application/problem+json"
}

// Get sends a GET request.
func Get[Resp any](t testing.TB, c *Client, path string) *Response[Resp] {
	t.Helper()
	return Send[Resp](t, c, Request{Method: http.MethodGet, Path: path})
}

// Post sends body encoded as JSON.
func Post[Req, Resp any](t testing.TB, c *Client, path string, body *Req) *Response[Resp] {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("apitest: marshal request body: %v", err)
	}
	return Send[Resp](t, c, Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   data,
		Header: http.Header{"Content-Type": {"application/json"}},
	})
}

// Delete sends a DELETE request.
func Delete[Resp any](t testing.TB, c *Client, path string) *Response[Resp] {
	t.Helper()
	return Send[Resp](t, c, Request{Method: http.MethodDelete, Path: path})
}

// Send sends req as is and decodes the answer.
func Send[Resp any](t testing.TB, c *Client, req Request) *Response[Resp] {
	t.Helper()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(context.Background(), req.Method, c.Server.URL+req.Path, body)
	if err != nil {
		t.Fatalf("apitest: create request: %v", err)
	}
	for k, vs := range req.Header {
		hreq.Header[http.CanonicalHeaderKey(k)] = vs
	}

	resp, err := c.Server.Client().Do(hreq)
	if err != nil {
		t.Fatalf("apitest: execute request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("apitest: close body: %v", closeErr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("apitest: read body: %v", err)
	}

	out := &Response[Resp]{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Bytes:   data,
		Raw:     resp,
	}
	if len(data) == 0 {
		return out
	}
	var decoded Resp
	if json.Unmarshal(data, &decoded) == nil {
		out.Body = &decoded
	}
	return out
}
