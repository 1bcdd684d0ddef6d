package oasql

import "github.com/bjaus/oasql/contract"

// Request is a validated request. Every declared parameter that was sent
// or has a default is present in Params with its schema type: int64 for
// integers, float64 for numbers, bool, string, or []any for arrays.
type Request struct {
	Operation *contract.Operation
	Params    map[string]any
	Body      any // decoded and coerced JSON body, nil when absent
	RequestID string
}

// Param returns a parameter value.
func (r *Request) Param(name string) (any, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// String returns a parameter as a string, or "" when it is absent or not a
// string.
func (r *Request) String(name string) string {
	s, _ := r.Params[name].(string)
	return s
}

// Int returns an integer parameter, or 0.
func (r *Request) Int(name string) int64 {
	n, _ := r.Params[name].(int64)
	return n
}

// Values returns the parameters and the body (under "body") as one map, the
// shape query templates bind against.
func (r *Request) Values() map[string]any {
	out := make(map[string]any, len(r.Params)+1)
	for k, v := range r.Params {
		out[k] = v
	}
	if r.Body != nil {
		out["body"] = r.Body
	}
	return out
}
