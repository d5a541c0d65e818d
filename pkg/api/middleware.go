// Middleware pipeline: ordered, short-circuiting units with an explicit
// continuation.

package api

import "net/http"

// Middleware is one unit of the request pipeline. A unit that wants later
// units (and eventually the handler) to run must invoke next; if it returns
// without doing so the chain halts silently, leaving whatever response the
// unit wrote. A returned error aborts the chain and goes to the central
// error mapper, never to later middleware.
type Middleware func(req *Request, res *Response, next func() error) error

// runChain executes middleware strictly in order, then the terminal
// function.
func runChain(req *Request, res *Response, chain []Middleware, terminal func() error) error {
	var step func(i int) error
	step = func(i int) error {
		if i == len(chain) {
			return terminal()
		}
		return chain[i](req, res, func() error {
			return step(i + 1)
		})
	}
	return step(0)
}

// WrapHTTP adapts a stock http.Handler into a route Handler. The Response
// passed through implements http.ResponseWriter, so status codes written
// by the wrapped handler stay visible to the dispatcher.
func WrapHTTP(h http.Handler) Handler {
	return func(req *Request, res *Response) error {
		h.ServeHTTP(res, req.Raw())
		return nil
	}
}
