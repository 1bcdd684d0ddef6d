package oasql

import (
	"context"
	"net/http"

	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/query"
)

// Handler serves one operation. It only ever sees validated requests. The
// returned value is encoded as JSON with the operation's success status; a
// *Response overrides status and headers, and a nil value sends no body.
type Handler func(ctx context.Context, req *Request) (any, error)

// Response lets a handler choose the status code and headers.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// StatusCode returns the response status.
func (r *Response) StatusCode() int { return r.Status }

// SetHeaders copies the response headers.
func (r *Response) SetHeaders(h http.Header) {
	for k, vs := range r.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
}

// HeaderSetter is optionally implemented by response types to set response headers.
type HeaderSetter interface {
	SetHeaders(h http.Header)
}

// Executor runs query templates. *query.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, t *query.Template, values map[string]any, schema *contract.Schema) (any, error)
}

// QueryHandler returns a Handler that runs t with the request's parameters
// and body and maps the result to the operation's success schema.
func QueryHandler(exec Executor, t *query.Template) Handler {
	return func(ctx context.Context, req *Request) (any, error) {
		out, err := exec.Execute(ctx, t, req.Values(), req.Operation.SuccessSchema())
		if err != nil {
			return nil, err
		}
		if t.Mode == query.ModeExec && req.Operation.SuccessStatus() == http.StatusNoContent {
			return nil, nil
		}
		return out, nil
	}
}
