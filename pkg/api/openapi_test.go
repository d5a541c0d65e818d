package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPISpecReflectsRoutes(t *testing.T) {
	s := testServer(t, nil)
	require.NoError(t, s.Route(
		RouteDefinition{
			Method: "GET", Path: "/sessions/:id/events", Handler: noopHandler,
			Summary: "List session events", Tags: []string{"sessions"},
		},
		RouteDefinition{
			Method: "DELETE", Path: "/sessions/:id", Handler: noopHandler,
		},
	))

	doc := s.OpenAPISpec()

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	require.NotNil(t, doc.Info)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "/api", doc.Servers[0].URL)

	item := doc.Paths.Value("/sessions/{id}/events")
	require.NotNil(t, item)
	require.NotNil(t, item.Get)
	assert.Equal(t, "List session events", item.Get.Summary)
	assert.Equal(t, []string{"sessions"}, item.Get.Tags)
	assert.Equal(t, "getSessionsIdEvents", item.Get.OperationID)

	require.Len(t, item.Get.Parameters, 1)
	param := item.Get.Parameters[0].Value
	assert.Equal(t, "id", param.Name)
	assert.Equal(t, "path", param.In)
	assert.True(t, param.Required)

	del := doc.Paths.Value("/sessions/{id}")
	require.NotNil(t, del)
	assert.NotNil(t, del.Delete)
}

func TestOpenAPISpecIncludesBuiltins(t *testing.T) {
	s := testServer(t, nil)

	doc := s.OpenAPISpec()

	stream := doc.Paths.Value("/stream")
	require.NotNil(t, stream)
	assert.NotNil(t, stream.Get)
	assert.NotNil(t, doc.Paths.Value("/openapi.json"))
}

func TestOpenAPIServedOverHTTP(t *testing.T) {
	s := testServer(t, nil)

	rec := doRequest(s, "GET", "/api/openapi.json", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"openapi":"3.0.3"`)
}

func TestOpenAPIDisabled(t *testing.T) {
	s := testServer(t, func(cfg *ServerConfig) {
		cfg.OpenAPI.Enabled = false
	})

	rec := doRequest(s, "GET", "/api/openapi.json", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
