package oasql

import (
	"net/url"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/bjaus/oasql/contract"
)

// route is an operation's path template split into segments.
type route struct {
	op     *contract.Operation
	segs   []string
	params []string // parameter name per segment, "" for literals
	nparam int
}

// dispatcher matches request paths against operation templates.
type dispatcher struct {
	basePath string
	routes   []route
}

func newDispatcher(c *contract.Contract) *dispatcher {
	d := &dispatcher{basePath: c.BasePath}
	for _, op := range c.Operations() {
		rt := route{op: op, segs: split(op.Path)}
		rt.params = make([]string, len(rt.segs))
		for i, s := range rt.segs {
			if contract.IsParamSegment(s) {
				rt.params[i] = s[1 : len(s)-1]
				rt.nparam++
			}
		}
		d.routes = append(d.routes, rt)
	}
	// More specific templates first: fewer parameters, then the leftmost
	// literal segment.
	slices.SortStableFunc(d.routes, func(a, b route) int {
		if a.nparam != b.nparam {
			return a.nparam - b.nparam
		}
		for i := range min(len(a.params), len(b.params)) {
			al, bl := a.params[i] == "", b.params[i] == ""
			if al != bl {
				if al {
					return -1
				}
				return 1
			}
		}
		return 0
	})
	return d
}

// match resolves method and escaped path to an operation and its raw path
// parameter values.
func (d *dispatcher) match(method, escapedPath string) (*contract.Operation, map[string]string, error) {
	p := escapedPath
	if d.basePath != "" {
		rest, ok := strings.CutPrefix(p, d.basePath)
		if !ok || (rest != "" && rest[0] != '/') {
			return nil, nil, &NotFoundError{Path: escapedPath}
		}
		p = rest
	}

	segs := split(p)
	for i, s := range segs {
		u, err := url.PathUnescape(s)
		if err != nil {
			return nil, nil, &NotFoundError{Path: escapedPath}
		}
		segs[i] = u
	}

	var allow []string
	for i := range d.routes {
		rt := &d.routes[i]
		if !rt.matches(segs) {
			continue
		}
		if rt.op.Method != method {
			allow = append(allow, rt.op.Method)
			continue
		}
		vals := make(map[string]string, rt.nparam)
		for j, name := range rt.params {
			if name != "" {
				vals[name] = segs[j]
			}
		}
		return rt.op, vals, nil
	}

	if len(allow) > 0 {
		allow = lo.Uniq(allow)
		slices.Sort(allow)
		return nil, nil, &MethodNotAllowedError{Method: method, Allow: allow}
	}
	return nil, nil, &NotFoundError{Path: escapedPath}
}

func (rt *route) matches(segs []string) bool {
	if len(segs) != len(rt.segs) {
		return false
	}
	for i, s := range rt.segs {
		if rt.params[i] != "" {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if s != segs[i] {
			return false
		}
	}
	return true
}

// split breaks a path into segments, ignoring the leading and a trailing
// slash. The root path has no segments.
func split(p string) []string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
