package api

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Request is the parsed form of an inbound HTTP request handed to
// middleware and handlers.
type Request struct {
	// Method is the HTTP method.
	Method string
	// Path is the normalized pathname with the configured base path
	// already stripped.
	Path string
	// Query holds the parsed query string. Repeated keys keep their
	// order; use QueryValue for the scalar case.
	Query url.Values
	// Params holds percent-decoded path parameters extracted by the
	// route table.
	Params map[string]string
	// ClientID identifies the calling client, derived from
	// X-Forwarded-For when present and the remote address otherwise.
	ClientID string

	raw *http.Request
}

// newRequest parses an http.Request into a Request. The routePath is the
// pathname after base-path stripping.
func newRequest(r *http.Request, routePath string) *Request {
	return &Request{
		Method:   r.Method,
		Path:     routePath,
		Query:    r.URL.Query(),
		Params:   map[string]string{},
		ClientID: clientID(r),
		raw:      r,
	}
}

// Context returns the underlying request context.
func (r *Request) Context() context.Context {
	return r.raw.Context()
}

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request {
	return r.raw
}

// Header returns the named request header.
func (r *Request) Header(name string) string {
	return r.raw.Header.Get(name)
}

// QueryValue returns the first value for the given query key, or "".
func (r *Request) QueryValue(key string) string {
	return r.Query.Get(key)
}

// QueryValues returns all values for the given query key in order.
func (r *Request) QueryValues(key string) []string {
	return r.Query[key]
}

// clientID derives a stable client identifier for a request. The first
// X-Forwarded-For hop wins when present; otherwise the remote host.
func clientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			xff = xff[:idx]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
