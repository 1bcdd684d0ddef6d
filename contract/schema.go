package contract

import (
	"regexp"

	"github.com/pb33f/libopenapi/datamodel/high/base"
)

// Schema types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// maxSchemaDepth bounds recursive schemas.
const maxSchemaDepth = 32

// Schema is the subset of JSON Schema the validator and the row mapper
// understand. An empty Type accepts any value.
type Schema struct {
	Type      string
	Format    string
	Nullable  bool
	Enum      []string
	Default   any
	Minimum   *float64
	Maximum   *float64
	MinLength *int64
	MaxLength *int64
	MinItems  *int64
	MaxItems  *int64
	Pattern   *regexp.Regexp

	Items      *Schema
	Properties map[string]*Schema
	Order      []string // property names in document order
	Required   []string
}

// IsRequired reports whether the named property is required.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Primitive reports whether values of this schema come from a single scalar.
func (s *Schema) Primitive() bool {
	switch s.Type {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

type schemaBuilder struct {
	pointer string
}

func (b *schemaBuilder) fromProxy(sp *base.SchemaProxy, depth int) (*Schema, error) {
	if sp == nil {
		return nil, nil
	}
	s := sp.Schema()
	if s == nil {
		err := &Error{Pointer: b.pointer, Reason: "unresolvable schema"}
		if berr := sp.GetBuildError(); berr != nil {
			err.Err = berr
		}
		return nil, err
	}
	return b.fromSchema(s, depth)
}

func (b *schemaBuilder) fromSchema(s *base.Schema, depth int) (*Schema, error) {
	if depth > maxSchemaDepth {
		return nil, errorf(b.pointer, "schema nesting exceeds %d levels", maxSchemaDepth)
	}
	if len(s.OneOf) > 0 || len(s.AnyOf) > 0 || s.Not != nil {
		return nil, errorf(b.pointer, "unsupported schema construct (oneOf/anyOf/not)")
	}

	out := &Schema{
		Format:    s.Format,
		Minimum:   s.Minimum,
		Maximum:   s.Maximum,
		MinLength: s.MinLength,
		MaxLength: s.MaxLength,
		MinItems:  s.MinItems,
		MaxItems:  s.MaxItems,
		Required:  append([]string(nil), s.Required...),
	}
	if s.Nullable != nil && *s.Nullable {
		out.Nullable = true
	}

	for _, t := range s.Type {
		switch t {
		case "null":
			out.Nullable = true
		case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
			if out.Type != "" && out.Type != t {
				return nil, errorf(b.pointer, "unsupported multi-type schema %v", s.Type)
			}
			out.Type = t
		default:
			return nil, errorf(b.pointer, "unsupported schema type %q", t)
		}
	}

	for _, n := range s.Enum {
		if n != nil {
			out.Enum = append(out.Enum, n.Value)
		}
	}
	if s.Default != nil {
		var v any
		if err := s.Default.Decode(&v); err != nil {
			return nil, &Error{Pointer: b.pointer, Reason: "invalid default", Err: err}
		}
		out.Default = v
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, &Error{Pointer: b.pointer, Reason: "invalid pattern", Err: err}
		}
		out.Pattern = re
	}

	if s.Items != nil && s.Items.IsA() {
		items, err := b.fromProxy(s.Items.A, depth+1)
		if err != nil {
			return nil, err
		}
		out.Items = items
		if out.Type == "" {
			out.Type = TypeArray
		}
	}

	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]*Schema, s.Properties.Len())
		for pair := s.Properties.First(); pair != nil; pair = pair.Next() {
			prop, err := b.fromProxy(pair.Value(), depth+1)
			if err != nil {
				return nil, err
			}
			out.Properties[pair.Key()] = prop
			out.Order = append(out.Order, pair.Key())
		}
		if out.Type == "" {
			out.Type = TypeObject
		}
	}

	// allOf is flattened: properties and required lists are merged.
	for _, sp := range s.AllOf {
		part, err := b.fromProxy(sp, depth+1)
		if err != nil {
			return nil, err
		}
		if err := b.merge(out, part); err != nil {
			return nil, err
		}
	}

	if out.Default != nil {
		v, reason := conform(out.Default, out)
		if reason != "" {
			return nil, errorf(b.pointer, "default %v %s", out.Default, reason)
		}
		out.Default = v
	}

	return out, nil
}

func (b *schemaBuilder) merge(dst, src *Schema) error {
	if src == nil {
		return nil
	}
	if src.Type != "" {
		if dst.Type != "" && dst.Type != src.Type {
			return errorf(b.pointer, "allOf mixes %s and %s", dst.Type, src.Type)
		}
		dst.Type = src.Type
	}
	if len(src.Properties) > 0 && dst.Properties == nil {
		dst.Properties = make(map[string]*Schema, len(src.Properties))
	}
	for _, name := range src.Order {
		if _, dup := dst.Properties[name]; !dup {
			dst.Order = append(dst.Order, name)
		}
		dst.Properties[name] = src.Properties[name]
	}
	dst.Required = append(dst.Required, src.Required...)
	return nil
}
