// Package query executes named SQL templates on pooled MySQL connections.
//
// Templates use #{name} placeholders:
//
//	SELECT id, name FROM users WHERE id = #{id}
//
// Parsing rewrites every placeholder to a positional "?" and records the
// placeholder order; values are always sent as bind arguments and never
// spliced into the SQL text. In a templates file the sql value must be
// quoted or a block scalar, since YAML reads " #" as a comment.
package query

import (
	"fmt"
	"strings"
)

// Mode selects how a template's result is shaped.
type Mode string

// Result modes.
const (
	ModeOne  Mode = "one"  // first row as an object; ErrNoRows when empty
	ModeMany Mode = "many" // all rows as an array of objects
	ModeExec Mode = "exec" // statement without rows; rowsAffected/lastInsertId
)

// Placeholder types. An empty type accepts any value.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Template is a parsed SQL template. It is immutable after Parse.
type Template struct {
	Name  string
	Text  string
	SQL   string
	Mode  Mode
	Names []string          // placeholder names in bind order, repeats included
	Types map[string]string // declared placeholder types
}

// Parse parses a template. Placeholders inside quoted literals, quoted
// identifiers and comments are left untouched.
func Parse(name, text string, mode Mode, types map[string]string) (*Template, error) {
	switch mode {
	case "":
		mode = ModeMany
	case ModeOne, ModeMany, ModeExec:
	default:
		return nil, fmt.Errorf("query %s: unknown mode %q", name, mode)
	}
	for k, t := range types {
		switch t {
		case "", TypeString, TypeInteger, TypeNumber, TypeBoolean:
		default:
			return nil, fmt.Errorf("query %s: placeholder %s has unknown type %q", name, k, t)
		}
	}

	sqlText, names, err := rewrite(text)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	declared := make(map[string]string, len(types))
	for k, v := range types {
		declared[k] = v
	}
	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[n] = true
	}
	for k := range declared {
		if !used[k] {
			return nil, fmt.Errorf("query %s: type declared for unused placeholder %s", name, k)
		}
	}

	return &Template{
		Name:  name,
		Text:  text,
		SQL:   sqlText,
		Mode:  mode,
		Names: names,
		Types: declared,
	}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(name, text string, mode Mode, types map[string]string) *Template {
	t, err := Parse(name, text, mode, types)
	if err != nil {
		panic(err)
	}
	return t
}

func rewrite(text string) (string, []string, error) {
	var (
		b     strings.Builder
		names []string
	)
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := skipQuoted(text, i, c)
			if end < 0 {
				return "", nil, fmt.Errorf("unterminated %c quote at offset %d", c, i)
			}
			b.WriteString(text[i:end])
			i = end
		case c == '-' && strings.HasPrefix(text[i:], "-- "), c == '#' && !strings.HasPrefix(text[i:], "#{"):
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text) - i
			}
			b.WriteString(text[i : i+end])
			i += end
		case c == '/' && strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return "", nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			b.WriteString(text[i : i+end+4])
			i += end + 4
		case c == '#':
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return "", nil, fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := strings.TrimSpace(text[i+2 : i+end])
			if !validName(name) {
				return "", nil, fmt.Errorf("invalid placeholder name %q at offset %d", name, i)
			}
			names = append(names, name)
			b.WriteByte('?')
			i += end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), names, nil
}

// skipQuoted returns the offset just past the literal starting at i, or -1.
// Doubled quotes and backslash escapes stay inside the literal.
func skipQuoted(text string, i int, q byte) int {
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			if j+1 < len(text) && text[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return -1
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
