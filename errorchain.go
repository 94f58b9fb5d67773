package nomagichttp

import "fmt"

// ErrorHandler is given the error that aborted an exchange, the request
// that was in flight (nil if the error happened before a head could be
// parsed), and the handler that was about to run (nil for the same
// reason); it returns a substitute response or re-raises. A handler
// that wants to opt out re-raises the same error value unchanged;
// raising a different error restarts the chain from the top with that
// new error.
type ErrorHandler func(err error, r *Request, h Handler) (*Response, error)

// Handler serves one request, writing its response(s) through the
// ClientChannel it is handed.
type Handler interface {
	Serve(r *Request, ch *ClientChannel) error
}

// chainError wraps a later error raised during error-handler recovery
// together with the error it displaced, so nothing is lost when a
// handler fails while recovering from an earlier failure.
type chainError struct {
	err      error
	previous error
}

func (e *chainError) Error() string {
	return fmt.Sprintf("%s (caused by: %s)", e.err, e.previous)
}

func (e *chainError) Unwrap() error { return e.err }

// errorChain is an ordered list of user-registered ErrorHandlers
// invoked, in order, until one returns a response instead of
// re-raising. Exhaustion falls through to defaultErrorHandler.
type errorChain struct {
	handlers []ErrorHandler
	maxDepth int
}

func newErrorChain(handlers []ErrorHandler, maxDepth int) *errorChain {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	return &errorChain{handlers: handlers, maxDepth: maxDepth}
}

// Recover drives the chain for one raised error, bounding the number of
// successive recovery rounds at maxDepth. It never returns a nil
// response: once the bound is hit, or every handler in the chain
// re-raises, the built-in default handler produces the final substitute
// response.
func (c *errorChain) Recover(err error, r *Request, h Handler) *Response {
	depth := 0
	for {
		depth++
		resp, again := c.attempt(err, r, h)
		if again == nil {
			return resp
		}
		if depth >= c.maxDepth {
			return defaultErrorHandler(&chainError{err: again, previous: err}, r, h)
		}
		err = &chainError{err: again, previous: err}
	}
}

// attempt runs every registered handler in order against err. It
// returns (response, nil) on the first handler that produces a
// response, falls through to defaultErrorHandler if every handler
// re-raised the exact same error, or returns (nil, newErr) if a handler
// raised a *different* error that should restart the chain.
func (c *errorChain) attempt(err error, r *Request, h Handler) (resp *Response, restart error) {
	for _, handler := range c.handlers {
		resp, hErr := handler(err, r, h)
		if hErr == nil {
			return resp, nil
		}
		if hErr == err {
			continue // opted out, try next handler
		}
		return nil, hErr // different error, restart chain
	}
	return defaultErrorHandler(err, r, h), nil
}

// defaultErrorHandler is the built-in fallback invoked when the
// user-registered chain is exhausted or exceeded: emits a response
// appropriate to well-known error kinds, defaulting to 500.
func defaultErrorHandler(err error, r *Request, _ Handler) *Response {
	status, reason := 500, "Internal Server Error"
	switch e := err.(type) {
	case *HeadSizeExceededError:
		status, reason = 431, "Request Header Fields Too Large"
	case *TrailerSizeExceededError:
		status, reason = 431, "Request Header Fields Too Large"
	case *ParseError:
		if e.Kind != "Application" {
			status, reason = 400, "Bad Request"
		}
	case *NoRouteFoundError:
		status, reason = 404, "Not Found"
	case *FramingMismatchError:
		status, reason = 500, "Internal Server Error"
	case *IllegalBodyError:
		status, reason = 500, "Internal Server Error"
	case headBodyMismatchError:
		status, reason = 500, "Internal Server Error"
	case *timeoutError:
		if e.kind == "response" {
			status, reason = 503, "Service Unavailable"
		} else {
			status, reason = 500, "Internal Server Error"
		}
	}
	resp := NewResponse(status, reason)
	resp.Headers.Set(strConnection, strClose)
	return resp
}

// Chain is handed to a route's before-actions. Each before-action must
// call Proceed or Abort at most once; a plain return counts as an
// implicit proceed. Proceed after the slot already resolved is rejected
// with ErrChainAlreadyResolved unless AllowLateProceed is set.
type Chain struct {
	AllowLateProceed bool
	resolved         bool
	aborted          bool
	abortResponse    *Response
}

// Proceed advances the chain to the next before-action (or the handler,
// if this was the last one). Calling it more than once -- or after Abort
// -- is an error unless AllowLateProceed is set.
func (c *Chain) Proceed() error {
	if c.resolved && !c.AllowLateProceed {
		return ErrChainAlreadyResolved
	}
	c.resolved = true
	return nil
}

// Abort short-circuits the chain: no further before-actions nor the
// handler run, and resp is written as the exchange's response instead.
func (c *Chain) Abort(resp *Response) error {
	if c.resolved && !c.AllowLateProceed {
		return ErrChainAlreadyResolved
	}
	c.resolved = true
	c.aborted = true
	c.abortResponse = resp
	return nil
}
