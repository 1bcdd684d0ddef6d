package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Bind resolves the template's placeholders against values and returns the
// positional arguments. Dotted names (body.name) walk nested objects. A
// placeholder with no value binds NULL.
func (t *Template) Bind(values map[string]any) ([]any, error) {
	args := make([]any, len(t.Names))
	for i, name := range t.Names {
		v, _ := lookup(values, name)
		arg, err := bindValue(v, t.Types[name])
		if err != nil {
			return nil, fmt.Errorf("placeholder %s: %w", name, err)
		}
		args[i] = arg
	}
	return args, nil
}

func lookup(values map[string]any, name string) (any, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(name, ".")
	if !found {
		return nil, false
	}
	nested, ok := values[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(nested, rest)
}

func bindValue(v any, typ string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case TypeInteger:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("want integer, got %T", v)
		}
		return n, nil
	case TypeNumber:
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", v)
		}
		return f, nil
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return nil, fmt.Errorf("want string, got %T", v)
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want boolean, got %T", v)
		}
		return b, nil
	}

	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		return x.Float64()
	case map[string]any, []any:
		// JSON columns
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return 0, false
		}
		return int64(x), true
	case float32:
		return toInt64(float64(x))
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}
