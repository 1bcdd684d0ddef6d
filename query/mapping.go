package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bjaus/oasql/contract"
)

// mapper converts scanned rows into values shaped by a response schema.
type mapper struct {
	query string
}

func (m mapper) fail(field, format string, args ...any) error {
	return &MappingError{Query: m.query, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// row maps one scanned row. Object schemas pick columns by property name and
// drop the rest; only an object schema without properties (or no schema)
// passes every column through. A primitive schema requires exactly one
// column.
func (m mapper) row(cols []string, rec map[string]any, s *contract.Schema, field string) (any, error) {
	if s != nil && s.Primitive() {
		if len(cols) != 1 {
			return nil, m.fail(field, "%d columns for a %s result", len(cols), s.Type)
		}
		return m.value(rec[cols[0]], s, field)
	}
	if s != nil && s.Type != "" && s.Type != contract.TypeObject {
		return nil, m.fail(field, "row cannot be mapped to %s", s.Type)
	}
	return m.object(rec, s, field)
}

func (m mapper) object(rec map[string]any, s *contract.Schema, field string) (map[string]any, error) {
	out := make(map[string]any, len(rec))
	used := make(map[string]bool, len(rec))

	if s != nil {
		for _, name := range s.Order {
			ps := s.Properties[name]
			path := join(field, name)
			col, v, ok := column(rec, name)
			required := s.IsRequired(name)
			if !ok {
				if required {
					return nil, m.fail(path, "missing column")
				}
				continue
			}
			used[col] = true
			if v == nil {
				switch {
				case ps.Nullable:
					out[name] = nil
				case required:
					return nil, m.fail(path, "null value for a non-nullable field")
				}
				continue
			}
			mv, err := m.value(v, ps, path)
			if err != nil {
				return nil, err
			}
			out[name] = mv
		}
	}

	if s != nil && len(s.Properties) > 0 {
		return out, nil
	}
	for col, v := range rec {
		if used[col] {
			continue
		}
		out[col] = natural(v)
	}
	return out, nil
}

func (m mapper) value(v any, s *contract.Schema, field string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch s.Type {
	case contract.TypeInteger:
		if b, ok := text(v); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
			if err != nil {
				return nil, m.fail(field, "%q is not an integer", b)
			}
			return n, nil
		}
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, m.fail(field, "%T is not an integer", v)
		}
		return n, nil

	case contract.TypeNumber:
		if b, ok := text(v); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
			if err != nil {
				return nil, m.fail(field, "%q is not a number", b)
			}
			return f, nil
		}
		f, ok := toFloat64(v)
		if !ok {
			return nil, m.fail(field, "%T is not a number", v)
		}
		return f, nil

	case contract.TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case []byte, string:
			b, _ := text(x)
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, m.fail(field, "%q is not a boolean", b)
			}
			return parsed, nil
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, m.fail(field, "%T is not a boolean", v)
		}
		return n != 0, nil

	case contract.TypeString:
		switch x := v.(type) {
		case time.Time:
			if s.Format == "date" {
				return x.Format(time.DateOnly), nil
			}
			return x.Format(time.RFC3339Nano), nil
		case json.Number:
			return x.String(), nil
		}
		if b, ok := text(v); ok {
			return b, nil
		}
		switch v.(type) {
		case int64, int32, int, uint64, uint32, float64, float32, bool:
			return fmt.Sprint(v), nil
		}
		return nil, m.fail(field, "%T is not a string", v)

	case contract.TypeArray:
		items, err := m.decode(v, field)
		if err != nil {
			return nil, err
		}
		list, ok := items.([]any)
		if !ok {
			return nil, m.fail(field, "column is not a JSON array")
		}
		out := make([]any, len(list))
		for i, item := range list {
			path := fmt.Sprintf("%s[%d]", field, i)
			if item == nil {
				out[i] = nil
				continue
			}
			if s.Items == nil {
				out[i] = item
				continue
			}
			mv, err := m.value(item, s.Items, path)
			if err != nil {
				return nil, err
			}
			out[i] = mv
		}
		return out, nil

	case contract.TypeObject:
		decoded, err := m.decode(v, field)
		if err != nil {
			return nil, err
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return nil, m.fail(field, "column is not a JSON object")
		}
		return m.object(obj, s, field)
	}
	return natural(v), nil
}

// decode parses a JSON column. Values that are already decoded pass through.
func (m mapper) decode(v any, field string) (any, error) {
	raw, ok := text(v)
	if !ok {
		return v, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, m.fail(field, "invalid JSON: %v", err)
	}
	return out, nil
}

// column finds a column by exact name, then case-insensitively.
func column(rec map[string]any, name string) (string, any, bool) {
	if v, ok := rec[name]; ok {
		return name, v, true
	}
	for col, v := range rec {
		if strings.EqualFold(col, name) {
			return col, v, true
		}
	}
	return "", nil, false
}

func text(v any) (string, bool) {
	switch x := v.(type) {
	case []byte:
		return string(bytes.Clone(x)), true
	case string:
		return x, true
	}
	return "", false
}

// natural converts driver values that have no JSON form of their own.
func natural(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	}
	return v
}

func join(field, name string) string {
	if field == "" {
		return name
	}
	return field + "." + name
}
