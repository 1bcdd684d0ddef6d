package contract

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pb33f/libopenapi"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// Load reads and parses the OpenAPI document at path.
func Load(path string) (*Contract, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return nil, &Error{Pointer: path, Reason: "read document", Err: err}
	}
	return Parse(data)
}

// Parse builds a Contract from OpenAPI 3 document bytes (JSON or YAML).
func Parse(data []byte) (*Contract, error) {
	doc, err := libopenapi.NewDocument(data)
	if err != nil {
		return nil, &Error{Reason: "malformed document", Err: err}
	}
	if v := doc.GetVersion(); !strings.HasPrefix(v, "3.") {
		return nil, errorf("", "unsupported OpenAPI version %q", v)
	}

	model, errs := doc.BuildV3Model()
	if errs != nil {
		return nil, errorf("", "build v3 model: %v", errs)
	}
	if model == nil {
		return nil, errorf("", "empty document")
	}

	c := &Contract{
		raw:    data,
		byID:   make(map[string]*Operation),
		byPath: make(map[string]*Operation),
	}
	if info := model.Model.Info; info != nil {
		c.Title = info.Title
		c.Version = info.Version
	}
	if len(model.Model.Servers) > 0 && model.Model.Servers[0] != nil {
		c.BasePath = basePath(model.Model.Servers[0].URL)
	}

	paths := model.Model.Paths
	if paths == nil || paths.PathItems == nil {
		return c, nil
	}

	for pair := paths.PathItems.First(); pair != nil; pair = pair.Next() {
		path := pair.Key()
		item := pair.Value()
		if item == nil {
			continue
		}
		if !strings.HasPrefix(path, "/") {
			return nil, errorf(path, "path must start with /")
		}

		for _, m := range methodsOf(item) {
			op, err := buildOperation(m.method, path, item, m.op)
			if err != nil {
				return nil, err
			}
			if err := c.add(op); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

func (c *Contract) add(op *Operation) error {
	key := routeKey(op.Method, op.Path)
	if prev, dup := c.byPath[key]; dup {
		return errorf(op.Method+" "+op.Path, "duplicate route, already declared as %s %s", prev.Method, prev.Path)
	}
	if prev, dup := c.byID[op.ID]; dup {
		return errorf(op.Method+" "+op.Path, "duplicate operationId %q, already used by %s %s", op.ID, prev.Method, prev.Path)
	}
	c.byPath[key] = op
	c.byID[op.ID] = op
	c.ops = append(c.ops, op)
	return nil
}

type methodOp struct {
	method string
	op     *v3.Operation
}

func methodsOf(item *v3.PathItem) []methodOp {
	all := []methodOp{
		{"GET", item.Get},
		{"PUT", item.Put},
		{"POST", item.Post},
		{"DELETE", item.Delete},
		{"OPTIONS", item.Options},
		{"HEAD", item.Head},
		{"PATCH", item.Patch},
		{"TRACE", item.Trace},
	}
	out := all[:0]
	for _, m := range all {
		if m.op != nil {
			out = append(out, m)
		}
	}
	return out
}

func buildOperation(method, path string, item *v3.PathItem, src *v3.Operation) (*Operation, error) {
	ptr := method + " " + path
	op := &Operation{
		ID:        src.OperationId,
		Method:    method,
		Path:      path,
		Summary:   src.Summary,
		Tags:      append([]string(nil), src.Tags...),
		Responses: make(map[string]Response),
	}
	if op.ID == "" {
		op.ID = ptr
	}

	params, err := mergeParameters(ptr, item.Parameters, src.Parameters)
	if err != nil {
		return nil, err
	}
	op.Parameters = params
	if err := checkPathParameters(ptr, path, params); err != nil {
		return nil, err
	}

	if src.RequestBody != nil {
		body, err := requestBody(ptr, src.RequestBody)
		if err != nil {
			return nil, err
		}
		op.RequestBody = body
	}

	if src.Responses != nil {
		if src.Responses.Codes != nil {
			for pair := src.Responses.Codes.First(); pair != nil; pair = pair.Next() {
				resp, err := response(ptr+" "+pair.Key(), pair.Value())
				if err != nil {
					return nil, err
				}
				op.Responses[strings.ToUpper(pair.Key())] = resp
			}
		}
		if src.Responses.Default != nil {
			resp, err := response(ptr+" default", src.Responses.Default)
			if err != nil {
				return nil, err
			}
			op.Responses["default"] = resp
		}
	}

	return op, nil
}

// mergeParameters applies operation-level parameters over path-level ones.
func mergeParameters(ptr string, shared, own []*v3.Parameter) ([]Parameter, error) {
	var out []Parameter
	index := make(map[string]int)
	names := make(map[string]Location)

	for _, list := range [][]*v3.Parameter{shared, own} {
		for _, p := range list {
			if p == nil {
				continue
			}
			param, err := parameter(ptr, p)
			if err != nil {
				return nil, err
			}
			key := string(param.In) + ":" + param.Name
			if i, ok := index[key]; ok {
				out[i] = param
				continue
			}
			if loc, ok := names[param.Name]; ok {
				return nil, errorf(ptr, "parameter %q declared in both %s and %s", param.Name, loc, param.In)
			}
			names[param.Name] = param.In
			index[key] = len(out)
			out = append(out, param)
		}
	}
	return out, nil
}

func parameter(ptr string, p *v3.Parameter) (Parameter, error) {
	in := Location(p.In)
	switch in {
	case InPath, InQuery, InHeader, InCookie:
	default:
		return Parameter{}, errorf(ptr, "parameter %q has unsupported location %q", p.Name, p.In)
	}
	if p.Name == "" {
		return Parameter{}, errorf(ptr, "parameter without a name")
	}

	b := &schemaBuilder{pointer: fmt.Sprintf("%s parameter %q", ptr, p.Name)}
	schema, err := b.fromProxy(p.Schema, 0)
	if err != nil {
		return Parameter{}, err
	}
	if schema == nil {
		schema = &Schema{Type: TypeString}
	}
	if schema.Type == TypeObject {
		return Parameter{}, errorf(ptr, "parameter %q: object parameters are not supported", p.Name)
	}
	if schema.Type == TypeArray && (schema.Items == nil || !schema.Items.Primitive()) {
		return Parameter{}, errorf(ptr, "parameter %q: array parameters need primitive items", p.Name)
	}

	return Parameter{
		Name:     p.Name,
		In:       in,
		Required: in == InPath || isSet(p.Required),
		Schema:   schema,
	}, nil
}

func checkPathParameters(ptr, path string, params []Parameter) error {
	inTemplate := make(map[string]bool)
	for _, name := range ParamNames(path) {
		if inTemplate[name] {
			return errorf(ptr, "path parameter {%s} appears twice", name)
		}
		inTemplate[name] = true
	}
	declared := make(map[string]bool)
	for _, p := range params {
		if p.In != InPath {
			continue
		}
		if !inTemplate[p.Name] {
			return errorf(ptr, "path parameter %q is not in the path template", p.Name)
		}
		declared[p.Name] = true
	}
	for name := range inTemplate {
		if !declared[name] {
			return errorf(ptr, "path template variable {%s} has no parameter definition", name)
		}
	}
	return nil
}

func requestBody(ptr string, rb *v3.RequestBody) (*RequestBody, error) {
	if rb.Content == nil || rb.Content.Len() == 0 {
		return nil, errorf(ptr, "request body without content")
	}
	for pair := rb.Content.First(); pair != nil; pair = pair.Next() {
		if !isJSONMediaType(pair.Key()) {
			continue
		}
		out := &RequestBody{Required: isSet(rb.Required)}
		if mt := pair.Value(); mt != nil {
			b := &schemaBuilder{pointer: ptr + " requestBody"}
			schema, err := b.fromProxy(mt.Schema, 0)
			if err != nil {
				return nil, err
			}
			out.Schema = schema
		}
		return out, nil
	}
	return nil, errorf(ptr, "request body has no JSON media type")
}

func response(ptr string, r *v3.Response) (Response, error) {
	out := Response{}
	if r == nil {
		return out, nil
	}
	out.Description = r.Description
	if r.Content == nil {
		return out, nil
	}
	for pair := r.Content.First(); pair != nil; pair = pair.Next() {
		if !isJSONMediaType(pair.Key()) || pair.Value() == nil {
			continue
		}
		b := &schemaBuilder{pointer: ptr}
		schema, err := b.fromProxy(pair.Value().Schema, 0)
		if err != nil {
			return out, err
		}
		out.Schema = schema
		break
	}
	return out, nil
}

func isJSONMediaType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// basePath extracts the path of a server URL ("https://x/v1/" -> "/v1").
func basePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" || strings.ContainsAny(p, "{}") {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// isSet reads an optional boolean flag regardless of whether the model
// exposes it as bool or *bool.
func isSet[T bool | *bool](v T) bool {
	switch b := any(v).(type) {
	case bool:
		return b
	case *bool:
		return b != nil && *b
	}
	return false
}
