package nomagichttp

// BodyKind identifies which of the three body shapes a request carries.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyLength
	BodyChunked
)

// Request is the assembled request head plus its body reader, built by
// the exchange loop from a ParsedHead and the request framing rules
// (Content-Length -> Length, Transfer-Encoding: chunked -> Chunked,
// neither -> Empty).
type Request struct {
	Method       []byte
	Target       *Target
	VersionMajor int
	VersionMinor int
	Headers      Header

	BodyKind BodyKind
	Body     BodyReader

	// chunked is the decoder behind Body when BodyKind == BodyChunked;
	// its trailers resolve once Body has been fully drained. nil otherwise.
	chunked *ChunkedReader
}

// Trailers returns the trailer multi-map resolved after the chunked body
// has reached EOF. Returns a zero Header for non-chunked requests or
// before the body is drained.
func (r *Request) Trailers() Header {
	if r.chunked == nil {
		return Header{}
	}
	return r.chunked.Trailers()
}

// IsHTTP11 reports whether the request line declared HTTP/1.1 or later.
func (r *Request) IsHTTP11() bool {
	return r.VersionMajor > 1 || (r.VersionMajor == 1 && r.VersionMinor >= 1)
}

// wantsConnectionClose reports whether the request itself asked for the
// connection to close (explicit header, or an HTTP/1.0 request without
// "Connection: keep-alive").
func (r *Request) wantsConnectionClose() bool {
	if r.Headers.HasToken(strConnection, strClose) {
		return true
	}
	if !r.IsHTTP11() && !r.Headers.HasToken(strConnection, []byte("keep-alive")) {
		return true
	}
	return false
}

// buildRequest determines body framing from headers and constructs the
// Request.
func buildRequest(cr *connReader, ph *ParsedHead, maxBodySize, maxTrailerSize int) (*Request, error) {
	req := &Request{
		Method:       ph.Line.Method,
		Target:       ParseTarget(ph.Line.Target),
		VersionMajor: ph.Line.VersionMajor,
		VersionMinor: ph.Line.VersionMinor,
		Headers:      ph.Headers,
	}

	teChunked := req.Headers.HasToken(strTransferEncoding, strChunked)
	clVal, hasCL := req.Headers.Get(strContentLength)

	if hasCL && teChunked {
		return nil, &FramingMismatchError{Msg: "both Content-Length and Transfer-Encoding: chunked present"}
	}

	switch {
	case teChunked:
		cdr := NewChunkedReader(cr, maxBodySize, maxTrailerSize)
		req.BodyKind = BodyChunked
		req.chunked = cdr
		req.Body = &chunkedBodyAdapter{r: cdr}
	case hasCL:
		n, err := parseUint(clVal)
		if err != nil {
			return nil, &ParseError{Kind: "HeaderParse", Msg: "invalid Content-Length: " + err.Error()}
		}
		req.BodyKind = BodyLength
		req.Body = NewLengthLimitedBody(cr, n)
	default:
		req.BodyKind = BodyEmpty
		req.Body = EmptyBody{}
	}

	return req, nil
}
