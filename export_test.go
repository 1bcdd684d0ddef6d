package oasql

import "github.com/bjaus/oasql/contract"

// Test-only exports for internal functions.
var (
	CoerceRaw = coerceRaw
	IsJSON    = isJSON
	Normalize = normalize
)

// Match resolves method and escaped path against c the way a Router does
// and returns the matched operation id.
func Match(c *contract.Contract, method, path string) (string, map[string]string, error) {
	op, vals, err := newDispatcher(c).match(method, path)
	if op == nil {
		return "", vals, err
	}
	return op.ID, vals, err
}
