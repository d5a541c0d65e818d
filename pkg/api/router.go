// Route table: path template compilation and request resolution.

package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Handler processes a dispatched request. A handler either writes its own
// response or returns an error for the central error mapper.
type Handler func(req *Request, res *Response) error

// RouteDefinition describes a single route. Definitions are immutable once
// registered with a Server.
type RouteDefinition struct {
	// Method is the HTTP method (GET, POST, ...).
	Method string
	// Path is the path template. Segments of the form :name capture a
	// path parameter; all other segments match literally.
	Path string
	// Handler is invoked after all middleware has passed.
	Handler Handler
	// Middleware runs after the global chain and before Handler, in order.
	Middleware []Middleware

	// Summary, Description and Tags feed the generated OpenAPI document.
	Summary     string
	Description string
	Tags        []string
}

// compiledRoute is a RouteDefinition plus its derived matcher.
type compiledRoute struct {
	def RouteDefinition
	// segments is the template split on "/"; a param segment is stored
	// as its bare name with paramSeg[i] true.
	segments []string
	paramSeg []bool
	// paramNames lists capture names in template order.
	paramNames []string
}

// routeTable holds compiled routes in registration order.
//
// Matching is a linear first-match-wins walk, not best-match resolution:
// overlapping templates must be registered from most- to least-specific.
type routeTable struct {
	routes []*compiledRoute
}

// compile converts a RouteDefinition into a compiledRoute.
func compile(def RouteDefinition) (*compiledRoute, error) {
	if def.Method == "" {
		return nil, fmt.Errorf("route %q: method is required", def.Path)
	}
	if !strings.HasPrefix(def.Path, "/") {
		return nil, fmt.Errorf("route %q: path must start with /", def.Path)
	}
	if def.Handler == nil {
		return nil, fmt.Errorf("route %s %s: handler is required", def.Method, def.Path)
	}

	raw := strings.Split(strings.TrimPrefix(def.Path, "/"), "/")
	cr := &compiledRoute{
		def:      def,
		segments: make([]string, len(raw)),
		paramSeg: make([]bool, len(raw)),
	}
	for i, seg := range raw {
		if strings.HasPrefix(seg, ":") {
			name := seg[1:]
			if name == "" {
				return nil, fmt.Errorf("route %s %s: empty parameter name", def.Method, def.Path)
			}
			cr.segments[i] = name
			cr.paramSeg[i] = true
			cr.paramNames = append(cr.paramNames, name)
			continue
		}
		cr.segments[i] = seg
	}
	return cr, nil
}

// add compiles and appends a route.
func (t *routeTable) add(def RouteDefinition) error {
	cr, err := compile(def)
	if err != nil {
		return err
	}
	t.routes = append(t.routes, cr)
	return nil
}

// matchPath checks the route pattern against a normalized path, returning
// the extracted parameters on success. Parameter values are percent-decoded
// before being exposed.
func (cr *compiledRoute) matchPath(path string) (map[string]string, bool) {
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) != len(cr.segments) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range segs {
		if cr.paramSeg[i] {
			if seg == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, len(cr.paramNames))
			}
			decoded, err := url.PathUnescape(seg)
			if err != nil {
				decoded = seg
			}
			params[cr.segments[i]] = decoded
			continue
		}
		if seg != cr.segments[i] {
			return nil, false
		}
	}
	if params == nil {
		params = map[string]string{}
	}
	return params, true
}

// resolve finds the first route (in registration order) whose method and
// pattern match. A path that matches some route's pattern but no route for
// this method yields a 405; a path matching nothing yields a 404. The 405
// check deliberately re-scans the table ignoring method - an O(routes)
// cost per miss that keeps the two outcomes observably distinct.
func (t *routeTable) resolve(method, path string) (*compiledRoute, map[string]string, error) {
	for _, cr := range t.routes {
		if cr.def.Method != method {
			continue
		}
		if params, ok := cr.matchPath(path); ok {
			return cr, params, nil
		}
	}

	for _, cr := range t.routes {
		if _, ok := cr.matchPath(path); ok {
			return nil, nil, MethodNotAllowedError(
				fmt.Sprintf("method %s not allowed for %s", method, path))
		}
	}

	return nil, nil, NotFoundError(fmt.Sprintf("no route for %s", path))
}
