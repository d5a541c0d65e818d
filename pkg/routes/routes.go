// Package routes defines the read API over the combat store: events,
// sessions, players and aggregate stats.
package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/camlog/camlog/pkg/api"
	"github.com/camlog/camlog/pkg/combatlog"
	"github.com/camlog/camlog/pkg/predict"
	"github.com/camlog/camlog/pkg/store"
)

// Store is the persistence surface the route handlers read from.
// *store.Store satisfies it.
type Store interface {
	ListEvents(ctx context.Context, f store.EventFilter) ([]combatlog.Event, int, error)
	GetEvent(ctx context.Context, id string) (combatlog.Event, error)
	ListSessions(ctx context.Context, limit, offset int) ([]combatlog.Session, int, error)
	GetSession(ctx context.Context, id string) (combatlog.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListPlayers(ctx context.Context, limit, offset int) ([]store.Player, int, error)
	GetPlayerStats(ctx context.Context, name string) (store.PlayerStats, error)
	GetSummary(ctx context.Context) (store.Summary, error)
}

// MaxPageSize caps the limit query parameter.
const MaxPageSize = 500

// PermissionFunc builds the middleware enforcing a named permission
// (for example "sessions:delete"). A nil PermissionFunc skips permission
// checks entirely; what a permission means is the host's business.
type PermissionFunc func(permission string) api.Middleware

// guard resolves a permission into the route middleware list.
func guard(perm PermissionFunc, permission string) []api.Middleware {
	if perm == nil {
		return nil
	}
	return []api.Middleware{perm(permission)}
}

// All returns every read route. Register alongside the server's builtins.
func All(s Store, p predict.Predictor, perm PermissionFunc) []api.RouteDefinition {
	defs := Events(s, perm)
	defs = append(defs, Sessions(s, perm)...)
	defs = append(defs, Players(s, perm)...)
	defs = append(defs, Stats(s, p, perm)...)
	return defs
}

// Events returns the event listing and lookup routes.
func Events(s Store, perm PermissionFunc) []api.RouteDefinition {
	return []api.RouteDefinition{
		{
			Method:  http.MethodGet,
			Path:    "/events",
			Summary: "List combat events",
			Description: "Lists events newest first. Filter with the sessionId, " +
				"type and target query parameters; page with limit and offset.",
			Tags:       []string{"events"},
			Middleware: guard(perm, "events:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				limit, offset, err := pageParams(req)
				if err != nil {
					return err
				}
				filter := store.EventFilter{
					SessionID: req.QueryValue("sessionId"),
					Type:      req.QueryValue("type"),
					Target:    req.QueryValue("target"),
					Limit:     limit,
					Offset:    offset,
				}
				events, total, err := s.ListEvents(req.Context(), filter)
				if err != nil {
					return mapStoreErr(err, "events")
				}
				res.SetPagination(total, limit, offset)
				return res.JSON(http.StatusOK, events)
			},
		},
		{
			Method:     http.MethodGet,
			Path:       "/events/:id",
			Summary:    "Get one combat event",
			Tags:       []string{"events"},
			Middleware: guard(perm, "events:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				e, err := s.GetEvent(req.Context(), req.Params["id"])
				if err != nil {
					return mapStoreErr(err, fmt.Sprintf("event %s", req.Params["id"]))
				}
				return res.JSON(http.StatusOK, e)
			},
		},
	}
}

// Sessions returns the session listing, lookup and deletion routes.
func Sessions(s Store, perm PermissionFunc) []api.RouteDefinition {
	return []api.RouteDefinition{
		{
			Method:     http.MethodGet,
			Path:       "/sessions",
			Summary:    "List combat sessions",
			Tags:       []string{"sessions"},
			Middleware: guard(perm, "sessions:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				limit, offset, err := pageParams(req)
				if err != nil {
					return err
				}
				sessions, total, err := s.ListSessions(req.Context(), limit, offset)
				if err != nil {
					return mapStoreErr(err, "sessions")
				}
				res.SetPagination(total, limit, offset)
				return res.JSON(http.StatusOK, sessions)
			},
		},
		{
			Method:     http.MethodGet,
			Path:       "/sessions/:id",
			Summary:    "Get one combat session",
			Tags:       []string{"sessions"},
			Middleware: guard(perm, "sessions:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				sess, err := s.GetSession(req.Context(), req.Params["id"])
				if err != nil {
					return mapStoreErr(err, fmt.Sprintf("session %s", req.Params["id"]))
				}
				return res.JSON(http.StatusOK, sess)
			},
		},
		{
			Method:     http.MethodGet,
			Path:       "/sessions/:id/events",
			Summary:    "List a session's events",
			Tags:       []string{"sessions"},
			Middleware: guard(perm, "sessions:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				id := req.Params["id"]
				if _, err := s.GetSession(req.Context(), id); err != nil {
					return mapStoreErr(err, fmt.Sprintf("session %s", id))
				}
				limit, offset, err := pageParams(req)
				if err != nil {
					return err
				}
				events, total, err := s.ListEvents(req.Context(), store.EventFilter{
					SessionID: id, Limit: limit, Offset: offset,
				})
				if err != nil {
					return mapStoreErr(err, "events")
				}
				res.SetPagination(total, limit, offset)
				return res.JSON(http.StatusOK, events)
			},
		},
		{
			Method:     http.MethodDelete,
			Path:       "/sessions/:id",
			Summary:    "Delete a session and its events",
			Tags:       []string{"sessions"},
			Middleware: guard(perm, "sessions:delete"),
			Handler: func(req *api.Request, res *api.Response) error {
				if err := s.DeleteSession(req.Context(), req.Params["id"]); err != nil {
					return mapStoreErr(err, fmt.Sprintf("session %s", req.Params["id"]))
				}
				res.NoContent(http.StatusNoContent)
				return nil
			},
		},
	}
}

// Players returns the player listing and stats routes.
func Players(s Store, perm PermissionFunc) []api.RouteDefinition {
	return []api.RouteDefinition{
		{
			Method:     http.MethodGet,
			Path:       "/players",
			Summary:    "List combatants by activity",
			Tags:       []string{"players"},
			Middleware: guard(perm, "players:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				limit, offset, err := pageParams(req)
				if err != nil {
					return err
				}
				players, total, err := s.ListPlayers(req.Context(), limit, offset)
				if err != nil {
					return mapStoreErr(err, "players")
				}
				res.SetPagination(total, limit, offset)
				return res.JSON(http.StatusOK, players)
			},
		},
		{
			Method:     http.MethodGet,
			Path:       "/players/:name",
			Summary:    "Get one combatant",
			Tags:       []string{"players"},
			Middleware: guard(perm, "players:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				st, err := s.GetPlayerStats(req.Context(), req.Params["name"])
				if err != nil {
					return mapStoreErr(err, fmt.Sprintf("player %s", req.Params["name"]))
				}
				return res.JSON(http.StatusOK, store.Player{
					Name:     st.Name,
					Events:   st.Events,
					LastSeen: st.LastSeen,
				})
			},
		},
		{
			Method:     http.MethodGet,
			Path:       "/players/:name/stats",
			Summary:    "Get one combatant's damage and healing breakdown",
			Tags:       []string{"players"},
			Middleware: guard(perm, "players:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				st, err := s.GetPlayerStats(req.Context(), req.Params["name"])
				if err != nil {
					return mapStoreErr(err, fmt.Sprintf("player %s", req.Params["name"]))
				}
				return res.JSON(http.StatusOK, st)
			},
		},
	}
}

// Stats returns the aggregate and prediction routes.
func Stats(s Store, p predict.Predictor, perm PermissionFunc) []api.RouteDefinition {
	return []api.RouteDefinition{
		{
			Method:     http.MethodGet,
			Path:       "/stats/summary",
			Summary:    "Whole-store aggregates",
			Tags:       []string{"stats"},
			Middleware: guard(perm, "stats:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				sum, err := s.GetSummary(req.Context())
				if err != nil {
					return mapStoreErr(err, "summary")
				}
				return res.JSON(http.StatusOK, sum)
			},
		},
		{
			Method:     http.MethodGet,
			Path:       "/stats/sessions/:id/prediction",
			Summary:    "Predict a session's outcome",
			Tags:       []string{"stats"},
			Middleware: guard(perm, "stats:read"),
			Handler: func(req *api.Request, res *api.Response) error {
				pred, err := p.PredictSession(req.Context(), req.Params["id"])
				if err != nil {
					return mapStoreErr(err, fmt.Sprintf("session %s", req.Params["id"]))
				}
				return res.JSON(http.StatusOK, pred)
			},
		},
	}
}

// Health returns the liveness route. The ping function is typically the
// store's Ping.
func Health(ping func(ctx context.Context) error) api.RouteDefinition {
	return api.RouteDefinition{
		Method:  http.MethodGet,
		Path:    "/healthz",
		Summary: "Liveness and data readiness",
		Tags:    []string{"meta"},
		Handler: func(req *api.Request, res *api.Response) error {
			if ping != nil {
				if err := ping(req.Context()); err != nil {
					return res.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "degraded",
					})
				}
			}
			return res.JSON(http.StatusOK, map[string]string{
				"status": "ok",
				"time":   time.Now().UTC().Format(time.RFC3339),
			})
		},
	}
}

// pageParams parses and bounds the limit/offset query parameters.
func pageParams(req *api.Request) (limit, offset int, err error) {
	limit = store.DefaultPageSize
	if raw := req.QueryValue("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxPageSize {
			return 0, 0, api.ValidationError(
				fmt.Sprintf("limit must be an integer between 1 and %d", MaxPageSize)).
				WithDetails(map[string]string{"param": "limit"})
		}
	}
	if raw := req.QueryValue("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, api.ValidationError("offset must be a non-negative integer").
				WithDetails(map[string]string{"param": "offset"})
		}
	}
	return limit, offset, nil
}

// mapStoreErr converts storage errors to wire errors.
func mapStoreErr(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return api.NotFoundError(fmt.Sprintf("%s not found", what))
	}
	return err
}
