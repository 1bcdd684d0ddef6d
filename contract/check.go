package contract

import (
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Violation applies the enum, bound, length, pattern and format constraints
// of s to v and returns the first one v breaks, or "". v must already have
// the Go type of the schema: int64 or float64 for numbers, string, bool,
// []any or map[string]any.
func (s *Schema) Violation(v any) string {
	if len(s.Enum) > 0 && !inEnum(v, s.Enum) {
		return "must be one of " + strings.Join(s.Enum, ", ")
	}

	switch x := v.(type) {
	case int64:
		if s.Format == "int32" && (x < math.MinInt32 || x > math.MaxInt32) {
			return "must be a 32-bit integer"
		}
		return s.bounds(float64(x))
	case float64:
		return s.bounds(x)
	case string:
		n := int64(utf8.RuneCountInString(x))
		if s.MinLength != nil && n < *s.MinLength {
			return fmt.Sprintf("must be at least %d characters", *s.MinLength)
		}
		if s.MaxLength != nil && n > *s.MaxLength {
			return fmt.Sprintf("must be at most %d characters", *s.MaxLength)
		}
		if s.Pattern != nil && !s.Pattern.MatchString(x) {
			return "must match pattern " + s.Pattern.String()
		}
		return formatViolation(x, s.Format)
	case []any:
		n := int64(len(x))
		if s.MinItems != nil && n < *s.MinItems {
			return fmt.Sprintf("must have at least %d items", *s.MinItems)
		}
		if s.MaxItems != nil && n > *s.MaxItems {
			return fmt.Sprintf("must have at most %d items", *s.MaxItems)
		}
	}
	return ""
}

func (s *Schema) bounds(f float64) string {
	if s.Minimum != nil && f < *s.Minimum {
		return "must be >= " + strconv.FormatFloat(*s.Minimum, 'f', -1, 64)
	}
	if s.Maximum != nil && f > *s.Maximum {
		return "must be <= " + strconv.FormatFloat(*s.Maximum, 'f', -1, 64)
	}
	return ""
}

func formatViolation(v, f string) string {
	switch f {
	case "date":
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	case "date-time":
		if _, err := time.Parse(time.RFC3339, v); err != nil {
			return "must be an RFC 3339 date-time"
		}
	case "uuid":
		if _, err := uuid.Parse(v); err != nil {
			return "must be a UUID"
		}
	case "email":
		if a, err := mail.ParseAddress(v); err != nil || a.Address != v {
			return "must be an email address"
		}
	}
	return ""
}

func inEnum(v any, enum []string) bool {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(x)
	default:
		return true
	}
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

// conform converts a decoded default to the Go type of s and checks it the
// way a request value would be checked. It returns the converted value and
// the first violation.
func conform(v any, s *Schema) (any, string) {
	switch x := v.(type) {
	case int:
		v = int64(x)
	case int32:
		v = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return nil, "is out of range"
		}
		v = int64(x)
	case float32:
		v = float64(x)
	case time.Time:
		if s.Format == "date" {
			v = x.Format(time.DateOnly)
		} else {
			v = x.Format(time.RFC3339Nano)
		}
	}

	switch s.Type {
	case TypeInteger:
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
			v = int64(f)
		}
		if _, ok := v.(int64); !ok {
			return nil, "must be an integer"
		}
	case TypeNumber:
		if n, ok := v.(int64); ok {
			v = float64(n)
		}
		if _, ok := v.(float64); !ok {
			return nil, "must be a number"
		}
	case TypeString:
		if _, ok := v.(string); !ok {
			return nil, "must be a string"
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return nil, "must be a boolean"
		}
	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return nil, "must be an object"
		}
	case TypeArray:
		list, ok := v.([]any)
		if !ok {
			return nil, "must be an array"
		}
		if s.Items != nil {
			out := make([]any, len(list))
			for i, item := range list {
				cv, reason := conform(item, s.Items)
				if reason != "" {
					return nil, fmt.Sprintf("item %d %s", i, reason)
				}
				out[i] = cv
			}
			v = out
		}
	}
	if reason := s.Violation(v); reason != "" {
		return nil, reason
	}
	return v, ""
}
