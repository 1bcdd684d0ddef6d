package oasql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/query"
)

// CheckQueries reports templates that cannot be served by c: templates
// named after no operation, and placeholders that name neither a declared
// parameter nor a field of the request body.
func CheckQueries(c *contract.Contract, set query.Set) error {
	var errs []error
	for _, name := range set.Names() {
		op, ok := c.Operation(name)
		if !ok {
			errs = append(errs, fmt.Errorf("query %s: no operation with this id", name))
			continue
		}
		for _, ph := range set[name].Names {
			if err := checkPlaceholder(op, ph); err != nil {
				errs = append(errs, fmt.Errorf("query %s: placeholder %s: %w", name, ph, err))
			}
		}
	}
	return errors.Join(errs...)
}

func checkPlaceholder(op *contract.Operation, name string) error {
	root, rest, nested := strings.Cut(name, ".")
	if root != "body" {
		if _, ok := op.Parameter(root); !ok {
			return errors.New("not a parameter of the operation")
		}
		return nil
	}
	if op.RequestBody == nil {
		return errors.New("operation has no request body")
	}
	s := op.RequestBody.Schema
	if !nested || s == nil {
		return nil
	}
	for _, field := range strings.Split(rest, ".") {
		if s == nil || s.Type != contract.TypeObject || s.Properties == nil {
			return nil
		}
		next, ok := s.Properties[field]
		if !ok {
			return fmt.Errorf("body has no property %q", field)
		}
		s = next
	}
	return nil
}
