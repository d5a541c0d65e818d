package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camlog/camlog/pkg/api"
	"github.com/camlog/camlog/pkg/combatlog"
	"github.com/camlog/camlog/pkg/predict"
	"github.com/camlog/camlog/pkg/store"
)

var t0 = time.Date(2026, 8, 30, 20, 0, 0, 0, time.UTC)

// testHarness wires an in-memory store behind a dispatching server.
func testHarness(t *testing.T) (*api.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(store.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := api.DefaultConfig()
	cfg.Logging = false
	srv := api.NewServer(cfg)
	require.NoError(t, srv.Route(All(st, predict.NewDamageRatio(st), nil)...))
	require.NoError(t, srv.Route(Health(st.Ping)))
	return srv, st
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, combatlog.Session{ID: "s1", StartedAt: t0}))
	events := []combatlog.Event{
		{ID: "e1", SessionID: "s1", Time: t0, Type: combatlog.EventDamage,
			Source: "You", Target: "a goblin", Amount: 25, DamageType: "slash"},
		{ID: "e2", SessionID: "s1", Time: t0.Add(time.Second), Type: combatlog.EventDamage,
			Source: "You", Target: "a goblin", Amount: 30, DamageType: "slash"},
		{ID: "e3", SessionID: "s1", Time: t0.Add(2 * time.Second), Type: combatlog.EventHeal,
			Source: "You", Target: "knight", Amount: 10},
	}
	for _, e := range events {
		require.NoError(t, st.InsertEvent(ctx, e))
	}
}

func get(srv *api.Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListEvents(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	rec := get(srv, "/api/events?limit=2")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))
	assert.Equal(t, "2", rec.Header().Get("X-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-Offset"))

	var events []combatlog.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].ID) // newest first
}

func TestListEventsTypeFilter(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	rec := get(srv, "/api/events?type=heal")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
}

func TestListEventsBadPagination(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	for _, target := range []string{
		"/api/events?limit=abc",
		"/api/events?limit=0",
		"/api/events?limit=9999",
		"/api/events?offset=-1",
	} {
		rec := get(srv, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetEvent(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	rec := get(srv, "/api/events/e1")
	require.Equal(t, http.StatusOK, rec.Code)

	var e combatlog.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "a goblin", e.Target)

	rec = get(srv, "/api/events/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionRoutes(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	rec := get(srv, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	rec = get(srv, "/api/sessions/s1")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess combatlog.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, 3, sess.EventCount)
	assert.Equal(t, 55, sess.TotalDamage)

	rec = get(srv, "/api/sessions/s1/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))

	rec = get(srv, "/api/sessions/missing/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(srv, "/api/sessions/s1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlayerRoutes(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	rec := get(srv, "/api/players")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))

	rec = get(srv, "/api/players/You")
	require.Equal(t, http.StatusOK, rec.Code)
	var p store.Player
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "You", p.Name)
	assert.Equal(t, 3, p.Events)

	rec = get(srv, "/api/players/You/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.PlayerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 55, stats.DamageDealt)
	assert.Equal(t, 10, stats.HealingDone)

	// Percent-encoded names round-trip through the path.
	rec = get(srv, "/api/players/a%20goblin/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(srv, "/api/players/nobody/stats")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsRoutes(t *testing.T) {
	srv, st := testHarness(t)
	seed(t, st)

	rec := get(srv, "/api/stats/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum store.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Sessions)
	assert.Equal(t, 3, sum.Events)
	assert.Equal(t, 55, sum.TotalDamage)

	rec = get(srv, "/api/stats/sessions/s1/prediction")
	require.Equal(t, http.StatusOK, rec.Code)
	var pred predict.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pred))
	assert.Equal(t, "s1", pred.SessionID)
	assert.Equal(t, predict.OutcomeWinning, pred.Outcome)

	rec = get(srv, "/api/stats/sessions/missing/prediction")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthRoute(t *testing.T) {
	srv, _ := testHarness(t)

	rec := get(srv, "/api/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestPermissionFuncGuardsRoutes(t *testing.T) {
	st, err := store.Open(store.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	seed(t, st)

	var checked []string
	perm := func(permission string) api.Middleware {
		return func(req *api.Request, res *api.Response, next func() error) error {
			checked = append(checked, permission)
			if permission == "sessions:delete" {
				return api.ForbiddenError("read-only token")
			}
			return next()
		}
	}

	cfg := api.DefaultConfig()
	cfg.Logging = false
	srv := api.NewServer(cfg)
	require.NoError(t, srv.Route(All(st, predict.NewDamageRatio(st), perm)...))

	rec := get(srv, "/api/sessions/s1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sessions:read"}, checked)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The denied delete never reached the store.
	rec = get(srv, "/api/sessions/s1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthRouteDegraded(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.Logging = false
	srv := api.NewServer(cfg)
	require.NoError(t, srv.Route(Health(func(ctx context.Context) error {
		return errors.New("db down")
	})))

	rec := get(srv, "/api/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}
