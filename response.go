package nomagichttp

import "fmt"

// LengthUnknown marks a Response body whose size cannot be known up
// front, forcing the response processor to select chunked framing.
const LengthUnknown = -1

// ResponseBody is a Response's byte iterator: Next returns the next
// buffer of body bytes, or (nil, ErrEndOfStream) once exhausted.
type ResponseBody interface {
	Next() ([]byte, error)
}

// bytesBody is a ResponseBody over an in-memory slice, the common case
// (handler built the whole body up front).
type bytesBody struct {
	b    []byte
	done bool
}

// NewBytesBody wraps b as a single-shot, known-length ResponseBody.
func NewBytesBody(b []byte) ResponseBody { return &bytesBody{b: b} }

func (it *bytesBody) Next() ([]byte, error) {
	if it.done {
		return nil, ErrEndOfStream
	}
	it.done = true
	if len(it.b) == 0 {
		return nil, ErrEndOfStream
	}
	return it.b, nil
}

// emptyResponseBody is the zero-item iterator used for 1xx/204/304/HEAD
// responses and any response constructed without an explicit body.
type emptyResponseBody struct{}

func (emptyResponseBody) Next() ([]byte, error) { return nil, ErrEndOfStream }

// Response is the application-produced message: version, status,
// reason, ordered headers, an optional trailer generator, and a
// length-hinted body iterator.
type Response struct {
	VersionMajor, VersionMinor int
	Status                     int
	Reason                     string
	Headers                    Header

	// BodyLength is len(Body) if known, or LengthUnknown. Responses built
	// via NewResponse/SetBodyBytes keep this in sync automatically;
	// SetBodyStream sets it to LengthUnknown.
	BodyLength int
	Body       ResponseBody

	// Trailers, if non-nil, is invoked once after Body is exhausted and
	// its result is serialized as the chunked stream's trailer block.
	Trailers func() (Header, error)

	// bodyIterCalled records that the processor has taken the body
	// iterator; it is never taken twice.
	bodyIterCalled bool
}

// NewResponse creates an empty-body response with the given status and
// reason, matching the zero value any handler starts from (most
// responses add headers and a body afterward via SetBodyBytes).
func NewResponse(status int, reason string) *Response {
	return &Response{
		VersionMajor: 1,
		VersionMinor: 1,
		Status:       status,
		Reason:       reason,
		Body:         emptyResponseBody{},
		BodyLength:   0,
	}
}

// SetBodyBytes attaches an in-memory body and sets BodyLength accordingly.
func (r *Response) SetBodyBytes(b []byte) {
	r.Body = NewBytesBody(b)
	r.BodyLength = len(b)
}

// SetBodyStream attaches a streaming body whose length is not known up
// front; the processor will select chunked transfer-encoding for it.
func (r *Response) SetBodyStream(body ResponseBody) {
	r.Body = body
	r.BodyLength = LengthUnknown
}

// iterator returns r.Body. A second call gets the same iterator back
// rather than re-opening whatever resource it holds.
func (r *Response) iterator() ResponseBody {
	if r.Body == nil {
		r.Body = emptyResponseBody{}
	}
	r.bodyIterCalled = true
	return r.Body
}

func isInformational(status int) bool { return status >= 100 && status < 200 }

// mustBeEmpty reports status/method combinations whose response body
// must be empty.
func mustBeEmpty(status int, method string, isConnect bool) bool {
	if isInformational(status) || status == 204 || status == 304 {
		return true
	}
	if method == "HEAD" {
		return true
	}
	if isConnect && status >= 200 && status < 300 {
		return true
	}
	return false
}

// preparedResponse is the processor's output: the rewritten response
// plus the body iterator to drain, and the two closure flags.
type preparedResponse struct {
	Response     *Response
	Body         ResponseBody
	Trailers     func() (Header, error)
	CloseOutput  bool
	CloseChannel bool
}

// responseProcessorConfig carries the handful of Server-level knobs the
// processor needs: the error-response budget and whether the server is
// draining.
type responseProcessorConfig struct {
	MaxErrorResponses int
	ServerStopping    bool
}

// processResponse rewrites the response a handler produced into a
// serialization-ready one, enforcing the message-framing invariants.
// req is the request it answers (nil for errors raised before a head
// could be parsed). Only the final response's close decision propagates
// to the connection. attrs holds the connection's running
// error-response counter.
func processResponse(resp *Response, req *Request, isFinal bool, attrs *Attrs, cfg responseProcessorConfig) (*preparedResponse, error) {
	body := resp.iterator()

	// Step 2: inject Connection: close for early errors or sub-1.1 requests.
	sawClose := resp.Headers.HasToken(strConnection, strClose)
	if !isInformational(resp.Status) {
		if req == nil {
			sawClose = true
		} else if !req.IsHTTP11() {
			sawClose = true
		}
	}

	method := ""
	isConnect := false
	reqVersion11 := true
	if req != nil {
		method = b2s(req.Method)
		isConnect = method == "CONNECT"
		reqVersion11 = req.IsHTTP11()
	}

	// A HEAD response with a known non-empty body is rejected here, before
	// a single byte reaches the wire, so the error chain can still
	// substitute a clean response. The writer re-checks unknown-length
	// bodies buffer by buffer.
	if method == "HEAD" && resp.BodyLength > 0 {
		return nil, ErrIllegalBodyInHeadResponse
	}

	hasTrailerHeader := resp.Headers.Has(strTrailer)
	trailers := resp.Trailers

	// Step 3: framing decision.
	if hasTrailerHeader && !reqVersion11 {
		resp.Headers.Del(strTrailer)
		trailers = nil
	} else if hasTrailerHeader || resp.BodyLength == LengthUnknown {
		if resp.Headers.Has(strTransferEncoding) {
			return nil, &FramingMismatchError{Msg: "Transfer-Encoding already present alongside chunked auto-selection"}
		}
		enc := NewChunkedEncoder(nil)
		body = &chunkedEncodingBody{inner: body, enc: enc, trailers: trailers}
		resp.Headers.Set(strTransferEncoding, strChunked)
	}

	// Step 4: track Connection: close.
	if req != nil && req.wantsConnectionClose() {
		sawClose = true
	}
	if cfg.ServerStopping {
		sawClose = true
	}
	if sawClose && !resp.Headers.HasToken(strConnection, strClose) {
		resp.Headers.Set(strConnection, strClose)
	}

	// Step 5: enforce framing invariants using the concrete length after
	// potential chunked wrapping.
	isChunked := resp.Headers.HasToken(strTransferEncoding, strChunked)
	hasTE := resp.Headers.Has(strTransferEncoding)
	_, hasCL := resp.Headers.Get(strContentLength)

	if isInformational(resp.Status) || resp.Status == 204 {
		if hasTE {
			return nil, &IllegalBodyError{Msg: "Transfer-Encoding not allowed on 1xx/204 responses"}
		}
	}
	if hasTE && hasCL {
		return nil, &FramingMismatchError{Msg: "Content-Length not allowed alongside Transfer-Encoding"}
	}

	mustEmpty := mustBeEmpty(resp.Status, method, isConnect)
	if mustEmpty && method != "HEAD" {
		if isChunked {
			return nil, &IllegalBodyError{Msg: fmt.Sprintf("body not allowed on status %d", resp.Status)}
		}
		if resp.BodyLength > 0 {
			return nil, &IllegalBodyError{Msg: fmt.Sprintf("body not allowed on status %d", resp.Status)}
		}
	}
	if isConnect && resp.Status >= 200 && resp.Status < 300 && hasCL {
		return nil, &FramingMismatchError{Msg: "Content-Length not allowed on a 2xx CONNECT response"}
	}

	if hasCL && !isChunked {
		clVal, _ := resp.Headers.Get(strContentLength)
		n, err := parseUint(clVal)
		if err != nil {
			return nil, &FramingMismatchError{Msg: "invalid Content-Length: " + err.Error()}
		}
		// HEAD and 304 carry the would-be entity's length, not the
		// (empty) emitted body's.
		if method != "HEAD" && resp.Status != 304 &&
			resp.BodyLength != LengthUnknown && n != resp.BodyLength {
			return nil, &FramingMismatchError{Msg: fmt.Sprintf("declared Content-Length %d does not match actual body length %d", n, resp.BodyLength)}
		}
	} else if !isChunked {
		switch {
		case isInformational(resp.Status) || resp.Status == 204 || resp.Status == 304:
			// No Content-Length on bodiless statuses.
		case method == "HEAD":
			// Content-Length optional but allowed; leave absent if the
			// handler never set one (no body was actually iterated).
		case isConnect && resp.Status >= 200 && resp.Status < 300:
			// Disallowed on a 2xx CONNECT.
		default:
			n := resp.BodyLength
			if n == LengthUnknown {
				n = 0
			}
			resp.Headers.Set(strContentLength, appendUint(nil, n))
		}
	}

	// Step 6: error-response budget.
	closeChannel := false
	if resp.Status >= 400 {
		n, _ := attrs.Get(attrErrorCount).(int)
		n++
		attrs.Set(attrErrorCount, n)
		if cfg.MaxErrorResponses > 0 && n >= cfg.MaxErrorResponses {
			closeChannel = true
		}
	}

	closeOutput := sawClose && isFinal

	return &preparedResponse{
		Response:     resp,
		Body:         body,
		Trailers:     trailers,
		CloseOutput:  closeOutput,
		CloseChannel: closeChannel || closeOutput,
	}, nil
}

// chunkedEncodingBody wraps a ResponseBody, encoding each buffer as a
// wire chunk and appending the terminating zero-chunk (plus trailers,
// if any) once the inner iterator is exhausted.
type chunkedEncodingBody struct {
	inner    ResponseBody
	enc      *ChunkedEncoder
	trailers func() (Header, error)
	done     bool
	scratch  []byte
}

func (b *chunkedEncodingBody) Next() ([]byte, error) {
	if b.done {
		return nil, ErrEndOfStream
	}
	for {
		buf, err := b.inner.Next()
		if err == ErrEndOfStream {
			b.done = true
			var trailers *Header
			if b.trailers != nil {
				h, terr := b.trailers()
				if terr != nil {
					return nil, terr
				}
				trailers = &h
			}
			b.enc.trailers = trailers
			b.scratch = b.enc.EncodeTrailer(b.scratch[:0])
			return b.scratch, nil
		}
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 {
			// A zero-size chunk is the stream terminator on the wire;
			// skip empty buffers rather than ending the stream early.
			continue
		}
		b.scratch = b.enc.EncodeChunk(b.scratch[:0], buf)
		return b.scratch, nil
	}
}
