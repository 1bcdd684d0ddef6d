package oasql

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/bjaus/oasql/contract"
)

// DefaultMaxBodyBytes is the request body limit when none is configured.
const DefaultMaxBodyBytes = 1 << 20

// validator turns raw requests into validated Requests.
type validator struct {
	maxBody int64
}

// validate checks every parameter and the body of r against op. All
// invalid fields are reported together in one 400 ProblemDetail. Body
// size and media type problems are reported on their own (413, 415).
func (v *validator) validate(w http.ResponseWriter, r *http.Request, op *contract.Operation, pathValues map[string]string) (*Request, error) {
	var errs []ValidationError
	params := make(map[string]any, len(op.Parameters))

	for _, p := range op.Parameters {
		raw, present := extract(r, p, pathValues)
		if !present {
			switch {
			case p.Schema != nil && p.Schema.Default != nil:
				params[p.Name] = normalize(p.Schema.Default)
			case p.Required:
				errs = append(errs, ValidationError{Field: p.Name, In: string(p.In), Reason: "is required"})
			}
			continue
		}
		val, reason := coerceRaw(raw, p.Schema)
		if reason != "" {
			errs = append(errs, ValidationError{Field: p.Name, In: string(p.In), Reason: reason})
			continue
		}
		params[p.Name] = val
	}

	body, bodyErrs, err := v.body(w, r, op)
	if err != nil {
		return nil, err
	}
	errs = append(errs, bodyErrs...)

	if len(errs) > 0 {
		return nil, &ProblemDetail{
			Type:     "about:blank",
			Title:    http.StatusText(http.StatusBadRequest),
			Status:   http.StatusBadRequest,
			Detail:   "request validation failed",
			Instance: r.URL.Path,
			Errors:   errs,
		}
	}

	return &Request{
		Operation: op,
		Params:    params,
		Body:      body,
		RequestID: GetRequestID(r),
	}, nil
}

func (v *validator) body(w http.ResponseWriter, r *http.Request, op *contract.Operation) (any, []ValidationError, error) {
	if op.RequestBody == nil || r.Body == nil {
		if op.RequestBody != nil && op.RequestBody.Required {
			return nil, []ValidationError{{Field: "body", In: "body", Reason: "is required"}}, nil
		}
		return nil, nil, nil
	}

	limit := v.maxBody
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, nil, &ProblemDetail{
				Type:   "about:blank",
				Title:  http.StatusText(http.StatusRequestEntityTooLarge),
				Status: http.StatusRequestEntityTooLarge,
				Detail: "request body exceeds the size limit",
			}
		}
		return nil, nil, Errorf(http.StatusBadRequest, "read body: %v", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		if op.RequestBody.Required {
			return nil, []ValidationError{{Field: "body", In: "body", Reason: "is required"}}, nil
		}
		return nil, nil, nil
	}

	if !isJSON(r.Header.Get("Content-Type")) {
		return nil, nil, &ProblemDetail{
			Type:   "about:blank",
			Title:  http.StatusText(http.StatusUnsupportedMediaType),
			Status: http.StatusUnsupportedMediaType,
			Detail: "request body must be application/json",
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, []ValidationError{{Field: "body", In: "body", Reason: "malformed JSON: " + err.Error()}}, nil
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, []ValidationError{{Field: "body", In: "body", Reason: "malformed JSON: trailing data"}}, nil
	}

	c := &coercer{}
	out := c.value(decoded, op.RequestBody.Schema, "body")
	return out, c.errs, nil
}

// extract reads the raw values of p from its location.
func extract(r *http.Request, p contract.Parameter, pathValues map[string]string) ([]string, bool) {
	switch p.In {
	case contract.InPath:
		v, ok := pathValues[p.Name]
		return []string{v}, ok
	case contract.InQuery:
		vs, ok := r.URL.Query()[p.Name]
		if !ok || len(vs) == 0 {
			return nil, false
		}
		return vs, true
	case contract.InHeader:
		vs := r.Header.Values(p.Name)
		return vs, len(vs) > 0
	case contract.InCookie:
		c, err := r.Cookie(p.Name)
		if err != nil {
			return nil, false
		}
		return []string{c.Value}, true
	}
	return nil, false
}

func isJSON(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
