package oasql

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bjaus/oasql/contract"
)

// coerceRaw converts the raw string values of a parameter to its schema
// type. Array parameters accept repeated keys and comma separated values.
func coerceRaw(raw []string, s *contract.Schema) (any, string) {
	if s == nil {
		return raw[0], ""
	}
	if s.Type != contract.TypeArray {
		return coerceString(raw[0], s)
	}

	var parts []string
	for _, r := range raw {
		if r == "" {
			continue
		}
		parts = append(parts, strings.Split(r, ",")...)
	}
	out := make([]any, 0, len(parts))
	for i, p := range parts {
		if s.Items == nil {
			out = append(out, p)
			continue
		}
		v, reason := coerceString(p, s.Items)
		if reason != "" {
			return nil, fmt.Sprintf("item %d %s", i, reason)
		}
		out = append(out, v)
	}
	if reason := s.Violation(out); reason != "" {
		return nil, reason
	}
	return out, ""
}

func coerceString(raw string, s *contract.Schema) (any, string) {
	var v any
	switch s.Type {
	case contract.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, "must be an integer"
		}
		v = n
	case contract.TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, "must be a number"
		}
		v = f
	case contract.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, "must be a boolean"
		}
		v = b
	default:
		v = raw
	}
	if reason := s.Violation(v); reason != "" {
		return nil, reason
	}
	return v, ""
}

// coercer walks a decoded JSON body against a schema and collects one
// error per invalid field.
type coercer struct {
	errs []ValidationError
}

func (c *coercer) fail(field, reason string) {
	c.errs = append(c.errs, ValidationError{Field: field, In: "body", Reason: reason})
}

func (c *coercer) value(v any, s *contract.Schema, field string) any {
	if v == nil {
		if s != nil && s.Type != "" && !s.Nullable {
			c.fail(field, "must not be null")
		}
		return nil
	}
	if s == nil || s.Type == "" {
		return normalize(v)
	}

	var out any
	switch s.Type {
	case contract.TypeInteger:
		n, ok := jsonInt(v)
		if !ok {
			c.fail(field, "must be an integer")
			return nil
		}
		out = n
	case contract.TypeNumber:
		num, ok := v.(json.Number)
		if !ok {
			c.fail(field, "must be a number")
			return nil
		}
		f, err := num.Float64()
		if err != nil {
			c.fail(field, "must be a number")
			return nil
		}
		out = f
	case contract.TypeString:
		str, ok := v.(string)
		if !ok {
			c.fail(field, "must be a string")
			return nil
		}
		out = str
	case contract.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			c.fail(field, "must be a boolean")
			return nil
		}
		out = b
	case contract.TypeArray:
		list, ok := v.([]any)
		if !ok {
			c.fail(field, "must be an array")
			return nil
		}
		before := len(c.errs)
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = c.value(item, s.Items, fmt.Sprintf("%s[%d]", field, i))
		}
		if len(c.errs) > before {
			return nil
		}
		out = items
	case contract.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			c.fail(field, "must be an object")
			return nil
		}
		return c.object(obj, s, field)
	}

	if reason := s.Violation(out); reason != "" {
		c.fail(field, reason)
		return nil
	}
	return out
}

func (c *coercer) object(obj map[string]any, s *contract.Schema, field string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if _, declared := s.Properties[k]; !declared {
			out[k] = normalize(v)
		}
	}
	for _, name := range s.Order {
		ps := s.Properties[name]
		path := field + "." + name
		v, ok := obj[name]
		if !ok {
			switch {
			case s.IsRequired(name):
				c.fail(path, "is required")
			case ps.Default != nil:
				out[name] = normalize(ps.Default)
			}
			continue
		}
		out[name] = c.value(v, ps, path)
	}
	return out
}

func jsonInt(v any) (int64, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if n, err := num.Int64(); err == nil {
		return n, true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// normalize converts decoded values to the types handlers see: int64 and
// float64 for numbers, []any and map[string]any for containers.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	}
	return v
}
