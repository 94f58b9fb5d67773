package nomagichttp

import "fmt"

// ParseError carries the position of a grammar failure: the byte
// immediately before and at the failure, the absolute stream position,
// and how many bytes of the current message had been consumed so far.
type ParseError struct {
	Kind          string // "RequestLineParse", "HeaderParse", "ChunkDecode", or "Application" for handler failures
	Prev, Cur     byte
	Pos           int64
	BytesConsumed int64
	Msg           string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at byte %d (prev=%q cur=%q, consumed=%d): %s",
		e.Kind, e.Pos, e.Prev, e.Cur, e.BytesConsumed, e.Msg)
}

// HeadSizeExceededError is raised when the request line + headers exceed
// MaxRequestHeadSize.
type HeadSizeExceededError struct{ Limit, Size int }

func (e *HeadSizeExceededError) Error() string {
	return fmt.Sprintf("request head of %d bytes exceeds limit of %d", e.Size, e.Limit)
}

// TrailerSizeExceededError is raised when chunked trailers exceed MaxTrailerSize.
type TrailerSizeExceededError struct{ Limit, Size int }

func (e *TrailerSizeExceededError) Error() string {
	return fmt.Sprintf("trailers of %d bytes exceed limit of %d", e.Size, e.Limit)
}

// FramingMismatchError is raised by the response processor when a
// declared Content-Length does not match the actual body length, or
// when Content-Length and Transfer-Encoding are both present.
type FramingMismatchError struct{ Msg string }

func (e *FramingMismatchError) Error() string { return "framing mismatch: " + e.Msg }

// IllegalBodyError covers 1xx/204/304/CONNECT-2xx bodies that must be
// empty; a non-empty HEAD body raises ErrIllegalBodyInHeadResponse instead.
type IllegalBodyError struct{ Msg string }

func (e *IllegalBodyError) Error() string { return e.Msg }

// UnsupportedQuotedExtensionError aborts chunk-extension parsing when a
// double quote appears, a safeguard against stream corruption.
type UnsupportedQuotedExtensionError struct{}

func (e *UnsupportedQuotedExtensionError) Error() string {
	return "quoted chunk extensions are not supported"
}

// InvalidDemandError is raised when a non-positive read size is requested.
type InvalidDemandError struct{ N int }

func (e *InvalidDemandError) Error() string {
	return fmt.Sprintf("invalid demand: %d", e.N)
}

// timeout / stream / lifecycle sentinels.
type timeoutError struct{ kind string }

func (e *timeoutError) Error() string   { return e.kind + " timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

var (
	ErrRequestBodyTimeout = &timeoutError{"request body"}
	ErrResponseTimeout    = &timeoutError{"response"}
	ErrWriteTimeout       = &timeoutError{"write"}
)

type streamError struct{ kind string }

func (e *streamError) Error() string { return e.kind }

var (
	ErrEndOfStream  = &streamError{"end of stream"}
	ErrClosedStream = &streamError{"stream closed"}
)

// NoRouteFoundError is returned by a Router collaborator when no route
// matches the request target.
type NoRouteFoundError struct{ Target string }

func (e *NoRouteFoundError) Error() string { return "no route found for " + e.Target }

// ErrChainAlreadyResolved is returned when Proceed or Abort is called
// after the current before-action's slot has already resolved.
var ErrChainAlreadyResolved = fmt.Errorf("chain: action already proceeded or aborted")
