package nomagichttp

import (
	"errors"
	"testing"
)

func TestErrorChainFirstResponderWins(t *testing.T) {
	sentinel := errors.New("boom")
	var order []string

	chain := newErrorChain([]ErrorHandler{
		func(err error, r *Request, h Handler) (*Response, error) {
			order = append(order, "first")
			return nil, err // opt out: re-raise the same error
		},
		func(err error, r *Request, h Handler) (*Response, error) {
			order = append(order, "second")
			return NewResponse(418, "I'm a teapot"), nil
		},
		func(err error, r *Request, h Handler) (*Response, error) {
			order = append(order, "third")
			return NewResponse(500, "nope"), nil
		},
	}, 4)

	resp := chain.Recover(sentinel, nil, nil)
	if resp.Status != 418 {
		t.Fatalf("status = %d, want 418", resp.Status)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("invocation order = %v", order)
	}
}

func TestErrorChainDifferentErrorRestarts(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	var seen []error

	chain := newErrorChain([]ErrorHandler{
		func(err error, r *Request, h Handler) (*Response, error) {
			seen = append(seen, err)
			if errors.Is(err, second) {
				return NewResponse(503, "recovered"), nil
			}
			return nil, second // raise a different error: restart the chain
		},
	}, 4)

	resp := chain.Recover(first, nil, nil)
	if resp.Status != 503 {
		t.Fatalf("status = %d, want 503", resp.Status)
	}
	if len(seen) != 2 {
		t.Fatalf("chain restarted %d times, want 2 invocations", len(seen))
	}
	// The restart must carry the previous error as its cause.
	if ce, ok := seen[1].(*chainError); !ok || ce.previous != first {
		t.Fatalf("second invocation did not carry the suppressed error: %v", seen[1])
	}
}

func TestErrorChainBoundedRecovery(t *testing.T) {
	invocations := 0
	chain := newErrorChain([]ErrorHandler{
		func(err error, r *Request, h Handler) (*Response, error) {
			invocations++
			return nil, errors.New("always different")
		},
	}, 3)

	resp := chain.Recover(errors.New("seed"), nil, nil)
	if resp.Status != 500 {
		t.Fatalf("exhausted chain must fall through to 500, got %d", resp.Status)
	}
	if invocations != 3 {
		t.Fatalf("handler ran %d times, want 3 (max depth)", invocations)
	}
	if !resp.Headers.HasToken(strConnection, strClose) {
		t.Fatal("default error response must close the connection")
	}
}

func TestErrorChainExhaustionFallsThrough(t *testing.T) {
	sentinel := errors.New("boom")
	chain := newErrorChain([]ErrorHandler{
		func(err error, r *Request, h Handler) (*Response, error) {
			return nil, err
		},
	}, 4)

	resp := chain.Recover(sentinel, nil, nil)
	if resp.Status != 500 {
		t.Fatalf("status = %d, want 500", resp.Status)
	}
}

func TestDefaultErrorHandlerMapping(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
	}{
		{&HeadSizeExceededError{Limit: 32, Size: 64}, 431},
		{&TrailerSizeExceededError{Limit: 8, Size: 20}, 431},
		{&ParseError{Kind: "RequestLineParse"}, 400},
		{&FramingMismatchError{Msg: "x"}, 500},
		{ErrIllegalBodyInHeadResponse, 500},
		{ErrResponseTimeout, 503},
		{ErrWriteTimeout, 500},
		{errors.New("anything"), 500},
	} {
		resp := defaultErrorHandler(tc.err, nil, nil)
		if resp.Status != tc.status {
			t.Errorf("defaultErrorHandler(%v) = %d, want %d", tc.err, resp.Status, tc.status)
		}
		if !resp.Headers.HasToken(strConnection, strClose) {
			t.Errorf("defaultErrorHandler(%v) must set Connection: close", tc.err)
		}
	}
}

func TestChainProceedAbortOnce(t *testing.T) {
	var c Chain
	if err := c.Proceed(); err != nil {
		t.Fatalf("first Proceed: %s", err)
	}
	if err := c.Proceed(); err != ErrChainAlreadyResolved {
		t.Fatalf("second Proceed: %v", err)
	}
	if err := c.Abort(NewResponse(403, "Forbidden")); err != ErrChainAlreadyResolved {
		t.Fatalf("Abort after Proceed: %v", err)
	}

	var late Chain
	late.AllowLateProceed = true
	if err := late.Proceed(); err != nil {
		t.Fatalf("Proceed: %s", err)
	}
	if err := late.Proceed(); err != nil {
		t.Fatalf("late Proceed must be tolerated when enabled: %v", err)
	}
}

func TestChainAbort(t *testing.T) {
	var c Chain
	resp := NewResponse(401, "Unauthorized")
	if err := c.Abort(resp); err != nil {
		t.Fatalf("Abort: %s", err)
	}
	if !c.aborted || c.abortResponse != resp {
		t.Fatal("abort state not recorded")
	}
}
