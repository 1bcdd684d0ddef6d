// Package contract loads an OpenAPI 3 document into the immutable set of
// operations served by an oasql Router.
//
// Loading happens once at startup:
//
//	c, err := contract.Load("openapi.yaml")
//	if err != nil {
//	    // *contract.Error: the service must not start
//	}
//	for _, op := range c.Operations() {
//	    fmt.Println(op.Method, op.Path, op.ID)
//	}
//
// Everything returned by this package is read-only after Load returns and is
// safe for concurrent use without synchronization.
package contract

import (
	"sort"
	"strconv"
	"strings"
)

// Location is where a parameter is read from.
type Location string

// Parameter locations.
const (
	InPath   Location = "path"
	InQuery  Location = "query"
	InHeader Location = "header"
	InCookie Location = "cookie"
)

// Parameter describes a single operation parameter.
type Parameter struct {
	Name     string
	In       Location
	Required bool
	Schema   *Schema
}

// RequestBody describes the JSON request body of an operation.
type RequestBody struct {
	Required bool
	Schema   *Schema
}

// Response describes one documented response.
type Response struct {
	Description string
	Schema      *Schema // nil when the response has no JSON body
}

// Operation is one documented (method, path) endpoint.
type Operation struct {
	ID          string
	Method      string
	Path        string
	Summary     string
	Tags        []string
	Parameters  []Parameter
	RequestBody *RequestBody
	Responses   map[string]Response
}

// Parameter returns the parameter with the given name, if declared.
func (o *Operation) Parameter(name string) (Parameter, bool) {
	for _, p := range o.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// SuccessStatus returns the lowest documented 2xx status code, or 200 when
// the operation documents none.
func (o *Operation) SuccessStatus() int {
	codes := o.successCodes()
	if len(codes) == 0 {
		return 200
	}
	return codes[0]
}

// SuccessSchema returns the JSON schema of the success response, falling
// back to the "2XX" and "default" entries.
func (o *Operation) SuccessSchema() *Schema {
	if codes := o.successCodes(); len(codes) > 0 {
		return o.Responses[strconv.Itoa(codes[0])].Schema
	}
	if r, ok := o.Responses["2XX"]; ok {
		return r.Schema
	}
	if r, ok := o.Responses["default"]; ok {
		return r.Schema
	}
	return nil
}

func (o *Operation) successCodes() []int {
	var codes []int
	for k := range o.Responses {
		n, err := strconv.Atoi(k)
		if err == nil && n >= 200 && n < 300 {
			codes = append(codes, n)
		}
	}
	sort.Ints(codes)
	return codes
}

// Contract is the loaded set of operations.
type Contract struct {
	Title    string
	Version  string
	BasePath string

	raw    []byte
	ops    []*Operation
	byID   map[string]*Operation
	byPath map[string]*Operation // "METHOD normalized-path"
}

// Operations returns all operations in document order.
func (c *Contract) Operations() []*Operation {
	out := make([]*Operation, len(c.ops))
	copy(out, c.ops)
	return out
}

// Operation looks up an operation by id.
func (c *Contract) Operation(id string) (*Operation, bool) {
	op, ok := c.byID[id]
	return op, ok
}

// Find looks up an operation by method and path template.
func (c *Contract) Find(method, path string) (*Operation, bool) {
	op, ok := c.byPath[routeKey(method, path)]
	return op, ok
}

// Raw returns the document bytes the contract was parsed from.
func (c *Contract) Raw() []byte {
	return c.raw
}

// routeKey identifies a (method, path) pair with path parameter names erased,
// so that /users/{id} and /users/{userId} collide.
func routeKey(method, path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if IsParamSegment(s) {
			segs[i] = "{}"
		}
	}
	return strings.ToUpper(method) + " /" + strings.Join(segs, "/")
}

// IsParamSegment reports whether a path segment is a "{name}" template.
func IsParamSegment(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

// ParamNames returns the parameter names of a path template in order.
func ParamNames(path string) []string {
	var names []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if IsParamSegment(s) {
			names = append(names, s[1:len(s)-1])
		}
	}
	return names
}
