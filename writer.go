package nomagichttp

import "time"

// WriteResult is returned by writeResponse on success: the total bytes
// written to the socket and the response that was written.
type WriteResult struct {
	BytesWritten int64
	Response     *Response
}

// writeDeadlineSetter is the subset of net.Conn the writer needs to arm
// a per-write timeout.
type writeDeadlineSetter interface {
	SetWriteDeadline(t time.Time) error
	Write(b []byte) (int, error)
}

// writeHead serializes the status line and headers (status line first,
// then each header in wire order, then the blank-line terminator). The
// writer always emits strict CRLF, regardless of what the parser
// tolerated on input.
func writeHead(dst []byte, resp *Response) []byte {
	dst = append(dst, strHTTPPrefix...)
	dst = appendUint(dst, resp.VersionMajor)
	dst = append(dst, '.')
	dst = appendUint(dst, resp.VersionMinor)
	dst = append(dst, ' ')
	dst = appendUint(dst, resp.Status)
	dst = append(dst, ' ')
	dst = append(dst, resp.Reason...)
	dst = append(dst, strCRLF...)
	dst = resp.Headers.AppendTo(dst)
	dst = append(dst, strCRLF...)
	return dst
}

var strHTTPPrefix = []byte("HTTP/")

// headBodyMismatchError is raised when a response to a HEAD request
// yields a non-empty body buffer -- the belt-and-suspenders check that
// lives in the writer in addition to the processor's own enforcement.
type headBodyMismatchError struct{}

func (headBodyMismatchError) Error() string { return "illegal body in response to HEAD request" }

// ErrIllegalBodyInHeadResponse reports a non-empty body in a response
// to a HEAD request.
var ErrIllegalBodyInHeadResponse error = headBodyMismatchError{}

// writeResponse writes a prepared response's head and body to conn, one
// socket write at a time (FIFO, at most one outstanding), each write
// bounded by idleTimeout. isHead forces the HEAD body check. The body
// iterator is pulled between writes, so producing the next buffer
// overlaps with the kernel draining the previous one.
func writeResponse(conn writeDeadlineSetter, pr *preparedResponse, isHead bool, idleTimeout time.Duration) (*WriteResult, error) {
	var total int64

	write := func(b []byte) error {
		if len(b) == 0 {
			return nil
		}
		if idleTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(idleTimeout)); err != nil {
				return err
			}
		}
		n, err := conn.Write(b)
		total += int64(n)
		if err != nil {
			if isTimeoutErr(err) {
				return ErrWriteTimeout
			}
			return err
		}
		return nil
	}

	head := writeHead(nil, pr.Response)
	if err := write(head); err != nil {
		return nil, err
	}

	for {
		buf, err := pr.Body.Next()
		if err == ErrEndOfStream {
			break
		}
		if err != nil {
			return &WriteResult{BytesWritten: total, Response: pr.Response}, err
		}
		if isHead && len(buf) > 0 {
			return &WriteResult{BytesWritten: total, Response: pr.Response}, ErrIllegalBodyInHeadResponse
		}
		if err := write(buf); err != nil {
			return &WriteResult{BytesWritten: total, Response: pr.Response}, err
		}
	}

	return &WriteResult{BytesWritten: total, Response: pr.Response}, nil
}

// isTimeoutErr reports whether err itself has a Timeout method returning
// true, as net.Error does; wrapped errors are not unwrapped.
func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

