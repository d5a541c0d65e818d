// CORS middleware for the API server.

package api

import (
	"strconv"
	"strings"
)

// corsMiddleware returns a middleware that sets CORS headers per the given
// configuration. Preflight OPTIONS requests never reach this middleware;
// the dispatcher answers them directly (see Server.ServeHTTP).
func corsMiddleware(cfg CORSConfig) Middleware {
	return func(req *Request, res *Response, next func() error) error {
		setCORSHeaders(res, cfg, req.Header("Origin"))
		return next()
	}
}

// setCORSHeaders applies the configured CORS headers for the given origin.
func setCORSHeaders(res *Response, cfg CORSConfig, origin string) {
	allowOrigin := allowOriginValue(cfg, origin)
	if allowOrigin == "" {
		return
	}

	h := res.Header()
	h.Set("Access-Control-Allow-Origin", allowOrigin)

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = DefaultCORSConfig().AllowMethods
	}
	h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))

	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = DefaultCORSConfig().AllowHeaders
	}
	h.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))

	if len(cfg.ExposeHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
	}
	if cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 86400
	}
	h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
}

// allowOriginValue resolves the Access-Control-Allow-Origin value for a
// request origin, or "" if the origin is not allowed.
func allowOriginValue(cfg CORSConfig, origin string) string {
	if len(cfg.AllowOrigins) == 0 {
		return "*"
	}
	for _, allowed := range cfg.AllowOrigins {
		if allowed == "*" {
			if cfg.AllowCredentials && origin != "" {
				// The wildcard is invalid with credentials; echo the origin.
				return origin
			}
			return "*"
		}
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}
