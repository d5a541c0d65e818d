package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(req *Request, res *Response) error { return nil }

func TestCompileRejectsInvalidDefinitions(t *testing.T) {
	cases := []struct {
		name string
		def  RouteDefinition
	}{
		{"missing method", RouteDefinition{Path: "/x", Handler: noopHandler}},
		{"missing handler", RouteDefinition{Method: "GET", Path: "/x"}},
		{"relative path", RouteDefinition{Method: "GET", Path: "x", Handler: noopHandler}},
		{"empty param name", RouteDefinition{Method: "GET", Path: "/x/:", Handler: noopHandler}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compile(tc.def)
			assert.Error(t, err)
		})
	}
}

func TestResolveLiteralAndParams(t *testing.T) {
	table := &routeTable{}
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/sessions", Handler: noopHandler,
	}))
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/sessions/:id/events", Handler: noopHandler,
	}))

	route, params, err := table.resolve("GET", "/sessions")
	require.NoError(t, err)
	assert.Equal(t, "/sessions", route.def.Path)
	assert.Empty(t, params)

	route, params, err = table.resolve("GET", "/sessions/42/events")
	require.NoError(t, err)
	assert.Equal(t, "/sessions/:id/events", route.def.Path)
	assert.Equal(t, map[string]string{"id": "42"}, params)
}

func TestResolveNotFoundVersusMethodNotAllowed(t *testing.T) {
	table := &routeTable{}
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/sessions/:id", Handler: noopHandler,
	}))

	_, _, err := table.resolve("GET", "/nowhere")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, CodeNotFound, apiErr.Code)

	_, _, err = table.resolve("DELETE", "/sessions/42")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusMethodNotAllowed, apiErr.Status)
	assert.Equal(t, CodeMethodNotAllowed, apiErr.Code)
}

func TestResolveFirstMatchWins(t *testing.T) {
	table := &routeTable{}
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/players/self", Handler: noopHandler,
	}))
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/players/:name", Handler: noopHandler,
	}))

	route, params, err := table.resolve("GET", "/players/self")
	require.NoError(t, err)
	assert.Equal(t, "/players/self", route.def.Path)
	assert.Empty(t, params)

	route, _, err = table.resolve("GET", "/players/Aeliriel")
	require.NoError(t, err)
	assert.Equal(t, "/players/:name", route.def.Path)
}

func TestResolveRegistrationOrderShadowing(t *testing.T) {
	// Registered param-first, the literal route is unreachable. This is
	// the documented contract, not a bug.
	table := &routeTable{}
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/players/:name", Handler: noopHandler,
	}))
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/players/self", Handler: noopHandler,
	}))

	route, params, err := table.resolve("GET", "/players/self")
	require.NoError(t, err)
	assert.Equal(t, "/players/:name", route.def.Path)
	assert.Equal(t, "self", params["name"])
}

func TestResolvePercentDecodesParams(t *testing.T) {
	table := &routeTable{}
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/players/:name", Handler: noopHandler,
	}))

	_, params, err := table.resolve("GET", "/players/Sir%20Lance")
	require.NoError(t, err)
	assert.Equal(t, "Sir Lance", params["name"])
}

func TestResolveEmptyParamSegmentDoesNotMatch(t *testing.T) {
	table := &routeTable{}
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/sessions/:id", Handler: noopHandler,
	}))

	_, _, err := table.resolve("GET", "/sessions/")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestResolveSegmentCountMustMatch(t *testing.T) {
	table := &routeTable{}
	require.NoError(t, table.add(RouteDefinition{
		Method: "GET", Path: "/sessions/:id", Handler: noopHandler,
	}))

	_, _, err := table.resolve("GET", "/sessions/42/extra")
	assert.Error(t, err)
}
