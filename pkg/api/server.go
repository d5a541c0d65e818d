// Package api provides the embeddable HTTP/SSE API server for the
// combat-log analytics engine.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camlog/camlog/pkg/logging"
	"github.com/camlog/camlog/pkg/sse"
)

// State is the lifecycle state of the server.
type State string

// Lifecycle states. Transitions are a subset of
// stopped -> starting -> running -> stopping -> stopped, with
// starting -> error on a readiness or bind failure.
const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Status is a point-in-time snapshot of the server.
type Status struct {
	// State is the current lifecycle state.
	State State `json:"state"`
	// Uptime is the time since the last successful start, 0 unless running.
	Uptime time.Duration `json:"uptime"`
	// Requests is the cumulative request count since creation.
	Requests uint64 `json:"requests"`
	// SSEConnections is the number of live streaming connections.
	SSEConnections int `json:"sseConnections"`
	// LastError is the most recent start failure, if any.
	LastError string `json:"lastError,omitempty"`
}

// DataSource is the externally supplied data dependency whose readiness is
// awaited before the listener binds.
type DataSource interface {
	Ping(ctx context.Context) error
}

// EventSource is an external collaborator emitting named domain events.
// An attached source's events are relayed verbatim onto the SSE broadcast
// channel.
type EventSource interface {
	// SubscribeAll registers a callback for every event and returns an
	// unsubscribe function.
	SubscribeAll(fn func(event string, data any)) (unsubscribe func())
}

// RequestObserver receives a notification for every completed request.
type RequestObserver interface {
	RequestCompleted(method, path string, status int, elapsed time.Duration)
}

// Server is the embeddable API server. It owns the route table, the global
// middleware chain, the SSE connection manager and the lifecycle state
// machine, and acts as the request dispatcher via its http.Handler
// implementation.
type Server struct {
	cfg *ServerConfig
	log *slog.Logger

	routesMu sync.RWMutex
	routes   *routeTable

	global  []Middleware
	auth    *apiKeyAuth
	limiter atomic.Pointer[rateLimiter]

	sseManager *sse.Manager

	data     DataSource
	observer RequestObserver

	mu           sync.Mutex // guards lifecycle state below
	state        State
	lastErr      string
	startTime    time.Time
	httpServer   *http.Server
	ln           net.Listener
	monitorUnsub func()

	requests atomic.Uint64
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithDataSource sets the data dependency awaited during Start.
func WithDataSource(ds DataSource) ServerOption {
	return func(s *Server) {
		s.data = ds
	}
}

// WithObserver sets the request completion observer.
func WithObserver(obs RequestObserver) ServerOption {
	return func(s *Server) {
		s.observer = obs
	}
}

// NewServer creates a Server from the given configuration. A nil config
// uses the defaults.
func NewServer(cfg *ServerConfig, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg:    cfg,
		log:    logging.Nop(),
		routes: &routeTable{},
		auth:   newAPIKeyAuth(cfg.Auth),
		state:  StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}

	heartbeat := time.Duration(cfg.SSE.HeartbeatIntervalMs) * time.Millisecond
	sseOpts := []sse.ManagerOption{sse.WithLogger(s.log)}
	// An observer that also tracks connection lifecycles is handed to the
	// SSE manager.
	if co, ok := s.observer.(sse.ConnectionObserver); ok {
		sseOpts = append(sseOpts, sse.WithObserver(co))
	}
	s.sseManager = sse.NewManager(heartbeat, sseOpts...)

	// Global middleware order is fixed: CORS, then auth, then rate limit.
	if cfg.CORS.Enabled {
		s.global = append(s.global, corsMiddleware(cfg.CORS))
	}
	if cfg.Auth.Enabled {
		s.global = append(s.global, s.auth.middleware())
	}
	if cfg.RateLimit.Enabled {
		s.global = append(s.global, s.rateLimit)
	}

	s.registerBuiltinRoutes()
	return s
}

// registerBuiltinRoutes installs the routes the server itself owns: the
// SSE subscription stream and, when enabled, the OpenAPI document.
func (s *Server) registerBuiltinRoutes() {
	builtin := []RouteDefinition{{
		Method:  http.MethodGet,
		Path:    "/stream",
		Handler: s.handleStream,
		Summary: "Subscribe to the live event stream",
		Description: "Opens a Server-Sent-Events stream. The eventTypes query " +
			"parameter limits delivery to the named event types; omit it to " +
			"receive everything.",
		Tags: []string{"stream"},
	}}

	if s.cfg.OpenAPI.Enabled {
		path := s.cfg.OpenAPI.Path
		if path == "" {
			path = DefaultOpenAPIConfig().Path
		}
		builtin = append(builtin, RouteDefinition{
			Method: http.MethodGet,
			Path:   path,
			Handler: func(req *Request, res *Response) error {
				return res.JSON(http.StatusOK, s.OpenAPISpec())
			},
			Summary: "OpenAPI document",
			Tags:    []string{"meta"},
		})
	}

	if err := s.Route(builtin...); err != nil {
		// Builtin templates are static; a failure here is a programming error.
		panic(err)
	}
}

// Route registers one or more route definitions. Routes are matched in
// registration order, first match wins: register overlapping templates
// from most- to least-specific.
func (s *Server) Route(defs ...RouteDefinition) error {
	s.routesMu.Lock()
	defer s.routesMu.Unlock()
	for _, def := range defs {
		if err := s.routes.add(def); err != nil {
			return err
		}
	}
	return nil
}

// rateLimit delegates to the active limiter, passing through when rate
// limiting is not running.
func (s *Server) rateLimit(req *Request, res *Response, next func() error) error {
	rl := s.limiter.Load()
	if rl == nil {
		return next()
	}
	return rl.handle(req, res, next)
}

// Start transitions the server from stopped to running. It first awaits
// readiness of the data dependency, then binds the listener. A failure in
// either step moves the server to the error state and is returned to the
// caller; there is no internal retry. Starting from any state other than
// stopped (or error, for caller-driven retry) fails without touching an
// existing listener.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped && s.state != StateError {
		return fmt.Errorf("api: cannot start server in state %q", s.state)
	}
	s.state = StateStarting
	s.lastErr = ""

	if s.data != nil {
		if err := s.data.Ping(ctx); err != nil {
			s.state = StateError
			s.lastErr = err.Error()
			return fmt.Errorf("api: data source not ready: %w", err)
		}
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.state = StateError
		s.lastErr = err.Error()
		return fmt.Errorf("api: bind %s: %w", addr, err)
	}
	s.ln = ln

	if s.cfg.RateLimit.Enabled {
		s.limiter.Store(newRateLimiter(s.cfg.RateLimit))
	}

	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", "error", err)
		}
	}(s.httpServer)

	s.state = StateRunning
	s.startTime = time.Now()
	s.log.Info("api server started", "addr", ln.Addr().String(), "base_path", s.cfg.BasePath)
	return nil
}

// Stop shuts the server down. SSE streams are terminated immediately with
// no drain; in-flight request/response traffic finishes per
// http.Server.Shutdown semantics. Stop is a no-op unless the server is
// running.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil
	}
	s.state = StateStopping

	s.sseManager.CloseAll()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if rl := s.limiter.Swap(nil); rl != nil {
		rl.Stop()
	}

	s.httpServer = nil
	s.ln = nil
	s.state = StateStopped
	s.startTime = time.Time{}
	s.log.Info("api server stopped")
	return err
}

// Status returns a snapshot of the server state.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var uptime time.Duration
	if s.state == StateRunning {
		uptime = time.Since(s.startTime)
	}
	return Status{
		State:          s.state,
		Uptime:         uptime,
		Requests:       s.requests.Load(),
		SSEConnections: s.sseManager.Count(),
		LastError:      s.lastErr,
	}
}

// Addr returns the bound listener address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// SSE returns the connection manager, for hosts that broadcast directly.
func (s *Server) SSE() *sse.Manager {
	return s.sseManager
}

// AddAPIKey registers an additional accepted API key at runtime.
func (s *Server) AddAPIKey(key string) {
	s.auth.AddKey(key)
}

// RemoveAPIKey revokes an API key at runtime.
func (s *Server) RemoveAPIKey(key string) {
	s.auth.RemoveKey(key)
}

// AttachMonitor subscribes to an event source and relays its events
// verbatim onto the SSE broadcast channel. Attaching a new source replaces
// a previously attached one.
func (s *Server) AttachMonitor(src EventSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.monitorUnsub != nil {
		s.monitorUnsub()
	}
	s.monitorUnsub = src.SubscribeAll(func(event string, data any) {
		s.sseManager.Broadcast(event, data)
	})
}

// DetachMonitor unsubscribes from the attached event source, if any.
func (s *Server) DetachMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.monitorUnsub != nil {
		s.monitorUnsub()
		s.monitorUnsub = nil
	}
}

// ServeHTTP is the request dispatcher: it strips the base path,
// special-cases OPTIONS, runs the global middleware chain, resolves the
// route, runs route middleware and finally the handler, mapping any error
// to a structured response.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.requests.Add(1)
	res := newResponse(w)

	path, ok := s.stripBasePath(r.URL.Path)
	if !ok {
		res.Error(NotFoundError(fmt.Sprintf("no route for %s", r.URL.Path)))
		s.finish(r.Method, r.URL.Path, res, start)
		return
	}

	// CORS preflight must always succeed: OPTIONS bypasses all
	// middleware, including auth and rate limiting.
	if r.Method == http.MethodOptions {
		if s.cfg.CORS.Enabled {
			setCORSHeaders(res, s.cfg.CORS, r.Header.Get("Origin"))
		}
		res.NoContent(http.StatusNoContent)
		s.finish(r.Method, path, res, start)
		return
	}

	req := newRequest(r, path)
	err := s.dispatch(req, res)
	if err != nil {
		if res.Written() {
			// A response cannot be rewritten once dispatched; the
			// failure is logged and discarded.
			s.log.Debug("error after response dispatched",
				"method", req.Method, "path", req.Path, "error", err)
		} else {
			res.Error(err)
		}
	}
	s.finish(req.Method, req.Path, res, start)
}

// dispatch runs global middleware, route resolution, route middleware and
// the handler. Panics anywhere in the chain surface as a generic internal
// error.
func (s *Server) dispatch(req *Request, res *Response) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic in request chain",
				"method", req.Method, "path", req.Path,
				"panic", rec, "stack", string(debug.Stack()))
			err = InternalError()
		}
	}()

	return runChain(req, res, s.global, func() error {
		s.routesMu.RLock()
		route, params, rerr := s.routes.resolve(req.Method, req.Path)
		s.routesMu.RUnlock()
		if rerr != nil {
			return rerr
		}
		req.Params = params

		return runChain(req, res, route.def.Middleware, func() error {
			return route.def.Handler(req, res)
		})
	})
}

// finish emits the completion notification and the request log line.
func (s *Server) finish(method, path string, res *Response, start time.Time) {
	status := res.Status()
	if status == 0 {
		// Nothing was written; net/http will send an empty 200.
		status = http.StatusOK
	}
	elapsed := time.Since(start)

	if s.observer != nil {
		s.observer.RequestCompleted(method, path, status, elapsed)
	}
	if s.cfg.Logging {
		s.log.Info("request",
			"method", method, "path", path,
			"status", status, "duration", elapsed)
	}
}

// stripBasePath removes the configured base path from a request path.
// Returns false when the path lies outside the base path entirely.
func (s *Server) stripBasePath(path string) (string, bool) {
	base := strings.TrimSuffix(s.cfg.BasePath, "/")
	if base == "" {
		return path, true
	}
	if path == base {
		return "/", true
	}
	if strings.HasPrefix(path, base+"/") {
		return path[len(base):], true
	}
	return "", false
}

// handleStream is the SSE subscription endpoint. The connection is owned
// by the manager from registration until transport close or shutdown; this
// handler only parks until one of those happens and then reports the
// transport-close back to the manager.
func (s *Server) handleStream(req *Request, res *Response) error {
	var types []string
	for _, v := range req.QueryValues("eventTypes") {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	conn, err := s.sseManager.Add(req.ClientID, res, types)
	if err != nil {
		return err
	}

	select {
	case <-req.Context().Done():
		s.sseManager.Remove(conn.ID)
	case <-conn.Done():
	}
	return nil
}
