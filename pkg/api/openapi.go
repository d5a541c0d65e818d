// OpenAPI 3.0 document generation from the live route table.

package api

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPISpec builds an OpenAPI 3.0 document from the registered routes.
// The document is regenerated on every call so runtime-registered routes
// always appear.
func (s *Server) OpenAPISpec() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "camlog API",
			Description: "Combat log analytics API with live event streaming.",
			Version:     "1.0.0",
		},
		Paths: openapi3.NewPaths(),
	}

	base := strings.TrimSuffix(s.cfg.BasePath, "/")
	if base != "" {
		doc.Servers = openapi3.Servers{{URL: base}}
	}

	s.routesMu.RLock()
	defer s.routesMu.RUnlock()

	for _, cr := range s.routes.routes {
		oasPath, params := templateToOpenAPI(cr)

		op := &openapi3.Operation{
			Summary:     cr.def.Summary,
			Description: cr.def.Description,
			Tags:        cr.def.Tags,
			OperationID: operationID(cr.def.Method, oasPath),
			Responses:   openapi3.NewResponses(),
		}
		for _, p := range params {
			op.AddParameter(p)
		}

		item := doc.Paths.Value(oasPath)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(oasPath, item)
		}
		item.SetOperation(cr.def.Method, op)
	}

	return doc
}

// templateToOpenAPI converts a :name template to {name} form and returns
// the path parameter definitions.
func templateToOpenAPI(cr *compiledRoute) (string, []*openapi3.Parameter) {
	var sb strings.Builder
	params := make([]*openapi3.Parameter, 0, len(cr.paramNames))

	for i, seg := range cr.segments {
		sb.WriteByte('/')
		if cr.paramSeg[i] {
			sb.WriteByte('{')
			sb.WriteString(seg)
			sb.WriteByte('}')
			p := openapi3.NewPathParameter(seg)
			p.Schema = openapi3.NewStringSchema().NewRef()
			params = append(params, p)
			continue
		}
		sb.WriteString(seg)
	}
	return sb.String(), params
}

// operationID derives a stable operation identifier, e.g.
// "getSessionsIdEvents" for GET /sessions/{id}/events.
func operationID(method, oasPath string) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(method))

	for _, seg := range strings.Split(oasPath, "/") {
		seg = strings.Trim(seg, "{}")
		seg = strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, seg)
		if seg == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(seg[:1]))
		sb.WriteString(seg[1:])
	}
	return sb.String()
}
