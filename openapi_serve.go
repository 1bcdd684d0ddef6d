package oasql

import (
	"encoding/json"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"
)

// ServeContract registers a GET handler at the given path that serves the
// contract document as JSON.
func (r *Router) ServeContract(pattern string) error {
	doc, err := r.contractDoc()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}
	r.aux.HandleFunc("GET "+pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck,gosec // best-effort after WriteHeader
		w.Write(body)
	})
	return nil
}

// ServeContractYAML registers a GET handler at the given path that serves
// the contract document as YAML.
func (r *Router) ServeContractYAML(pattern string) error {
	doc, err := r.contractDoc()
	if err != nil {
		return err
	}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}
	r.aux.HandleFunc("GET "+pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		//nolint:errcheck,gosec // best-effort after WriteHeader
		w.Write(body)
	})
	return nil
}

// contractDoc decodes the raw contract, JSON or YAML, into generic values.
func (r *Router) contractDoc() (any, error) {
	var doc any
	if err := yaml.Unmarshal(r.contract.Raw(), &doc); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	return jsonable(doc), nil
}

// jsonable converts YAML-decoded values (which may have non-string map keys)
// into values encoding/json accepts.
func jsonable(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = jsonable(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[fmt.Sprint(k)] = jsonable(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = jsonable(item)
		}
		return out
	}
	return v
}
