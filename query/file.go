package query

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Set is a collection of templates keyed by operation id.
type Set map[string]*Template

// Names returns the template names in sorted order.
func (s Set) Names() []string {
	names := lo.Keys(s)
	slices.Sort(names)
	return names
}

type fileEntry struct {
	SQL    string            `yaml:"sql"`
	Params map[string]string `yaml:"params"`
	Result Mode              `yaml:"result"`
}

type fileDoc struct {
	Queries map[string]fileEntry `yaml:"queries"`
}

// LoadFile reads a templates file:
//
//	queries:
//	  getUser:
//	    sql: "SELECT id, name FROM users WHERE id = #{id}"
//	    params: {id: integer}
//	    result: one
//
// In YAML " #" starts a comment, so sql values holding placeholders must be
// quoted or written as block scalars (sql: |). Unquoted values that YAML cut
// at a placeholder are rejected.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses the contents of a templates file.
func ParseFile(data []byte) (Set, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode queries: %w", err)
	}

	var errs []error
	cut, err := truncatedSQL(data)
	if err != nil {
		return nil, fmt.Errorf("decode queries: %w", err)
	}
	for _, name := range cut {
		errs = append(errs, fmt.Errorf("query %s: sql is cut at a placeholder: quote the value or use a block scalar", name))
		delete(doc.Queries, name)
	}

	set := make(Set, len(doc.Queries))
	for name, e := range doc.Queries {
		if e.SQL == "" {
			errs = append(errs, fmt.Errorf("query %s: sql is empty", name))
			continue
		}
		t, err := Parse(name, e.SQL, e.Result, e.Params)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set[name] = t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return set, nil
}

// truncatedSQL returns the names of queries whose plain sql value ended where
// YAML saw a comment starting with a placeholder.
func truncatedSQL(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	queries := mappingValue(root.Content[0], "queries")
	if queries == nil || queries.Kind != yaml.MappingNode {
		return nil, nil
	}

	var names []string
	for i := 0; i+1 < len(queries.Content); i += 2 {
		entry := queries.Content[i+1]
		if entry.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(entry.Content); j += 2 {
			key, val := entry.Content[j], entry.Content[j+1]
			if key.Value != "sql" {
				continue
			}
			if strings.HasPrefix(val.LineComment, "#{") || strings.HasPrefix(key.LineComment, "#{") {
				names = append(names, queries.Content[i].Value)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
