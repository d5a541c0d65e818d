// Package api implements the embeddable HTTP/SSE API server.
//
// A Server is created from a ServerConfig (usually produced by MergeConfig
// from partial overrides), populated with routes via Route, and driven
// through Start and Stop. Routes declare :name path parameters and are
// matched in registration order, first match wins. Handlers receive a
// Request/Response pair; returning an error produces a structured JSON
// error body via the central error mapper.
//
// Cross-cutting behavior is middleware: the global chain (CORS, then
// authentication, then rate limiting, as enabled by configuration) runs
// before route resolution, per-route middleware after it. A middleware
// decides explicitly whether the request continues by calling next.
//
// Live events reach clients over Server-Sent Events: GET /stream opens a
// connection managed by the sse package, and AttachMonitor relays an
// EventSource's events to every subscribed connection.
package api
