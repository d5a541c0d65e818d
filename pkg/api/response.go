package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Response wraps an http.ResponseWriter with JSON helpers and write-once
// tracking. It implements http.ResponseWriter so stock handlers can be
// mounted through WrapHTTP.
type Response struct {
	w      http.ResponseWriter
	status int
	wrote  bool
}

// newResponse wraps a ResponseWriter.
func newResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// Header returns the response header map.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// WriteHeader writes the status line once; later calls are ignored.
func (r *Response) WriteHeader(status int) {
	if r.wrote {
		return
	}
	r.status = status
	r.wrote = true
	r.w.WriteHeader(status)
}

// Write writes body bytes, defaulting the status to 200.
func (r *Response) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.w.Write(b)
}

// Flush forwards to the underlying writer's flusher, if any. Needed so
// streaming responses work through the Response wrapper.
func (r *Response) Flush() {
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Written reports whether the status line has been sent.
func (r *Response) Written() bool {
	return r.wrote
}

// Status returns the status code sent, or 0 if nothing was written yet.
func (r *Response) Status() int {
	return r.status
}

// JSON writes a JSON body with the given status code.
func (r *Response) JSON(status int, v any) error {
	r.Header().Set("Content-Type", "application/json")
	r.WriteHeader(status)
	return json.NewEncoder(r).Encode(v)
}

// NoContent writes an empty response with the given status code.
func (r *Response) NoContent(status int) {
	r.WriteHeader(status)
}

// Error writes a structured error body. Unstructured errors are wrapped
// into a generic internal error first.
func (r *Response) Error(err error) {
	apiErr := asAPIError(err)
	_ = r.JSON(apiErr.Status, map[string]*Error{"error": apiErr})
}

// SetPagination sets the pagination headers used by list endpoints.
func (r *Response) SetPagination(total, limit, offset int) {
	h := r.Header()
	h.Set("X-Total-Count", strconv.Itoa(total))
	h.Set("X-Limit", strconv.Itoa(limit))
	h.Set("X-Offset", strconv.Itoa(offset))
}
