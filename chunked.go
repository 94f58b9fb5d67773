package nomagichttp

import "fmt"

// byteCursor adapts a connReader's buffer-at-a-time pull interface to
// the byte-at-a-time reads the chunk-size and chunk-trailer grammars
// need. Internally it only ever holds one connReader holder at a time,
// preserving the reader's one-buffer-in-flight invariant.
type byteCursor struct {
	cr *connReader
	h  *bufHolder

	// pos counts bytes consumed from the stream; prev and cur are the
	// two most recently consumed bytes. Together they anchor parse-error
	// positions.
	pos  int64
	prev byte
	cur  byte
}

func newByteCursor(cr *connReader) *byteCursor {
	return &byteCursor{cr: cr}
}

func (bc *byteCursor) readByte() (byte, error) {
	for bc.h == nil || len(bc.h.bytes()) == 0 {
		if bc.h != nil {
			bc.h.release(0)
			bc.h = nil
		}
		h, err := bc.cr.next()
		if err != nil {
			return 0, err
		}
		bc.h = h
	}
	b := bc.h.bytes()[0]
	bc.h.release(1)
	bc.prev, bc.cur = bc.cur, b
	bc.pos++
	return b, nil
}

// parseError builds a ChunkDecode error anchored at the most recently
// consumed byte.
func (bc *byteCursor) parseError(msg string) *ParseError {
	pe := &ParseError{Kind: "ChunkDecode", Prev: bc.prev, Cur: bc.cur, BytesConsumed: bc.pos, Msg: msg}
	if bc.pos > 0 {
		pe.Pos = bc.pos - 1
	}
	return pe
}

func isHexDigit(c byte) bool {
	return hexbyte2int(c) >= 0
}

const maxChunkExtLen = 1024

// readChunkSizeLine parses "size-hex [; ext] LF", discarding extensions
// and aborting on a double quote. Accepts either CRLF or a bare LF
// before the extension/data, per the engine's overall lenient
// line-terminator grammar.
func readChunkSizeLine(bc *byteCursor) (int, error) {
	var hex []byte
	for {
		b, err := bc.readByte()
		if err != nil {
			return 0, err
		}
		if isHexDigit(b) {
			hex = append(hex, b)
			if len(hex) > maxHexIntChars {
				return 0, bc.parseError("chunk size too long")
			}
			continue
		}
		switch b {
		case ';':
			if err := discardChunkExt(bc); err != nil {
				return 0, err
			}
		case '\r':
			nb, err := bc.readByte()
			if err != nil {
				return 0, err
			}
			if nb != '\n' {
				return 0, bc.parseError("expected LF after CR in chunk size")
			}
		case '\n':
			// bare LF terminator, accepted
		default:
			return 0, bc.parseError(fmt.Sprintf("unexpected byte %q in chunk size", b))
		}
		break
	}
	if len(hex) == 0 {
		return 0, bc.parseError("empty chunk size")
	}
	n := 0
	for _, c := range hex {
		n = n<<4 | hexbyte2int(c)
	}
	return n, nil
}

func discardChunkExt(bc *byteCursor) error {
	n := 0
	for {
		b, err := bc.readByte()
		if err != nil {
			return err
		}
		if b == '"' {
			return &UnsupportedQuotedExtensionError{}
		}
		if b == '\n' {
			return nil
		}
		n++
		if n > maxChunkExtLen {
			return bc.parseError("chunk extension too long")
		}
	}
}

// readLineTerminator consumes a CRLF or bare-LF terminator after chunk
// data. CR within data is tolerated only as part of the trailing line
// terminator.
func readLineTerminator(bc *byteCursor) error {
	b, err := bc.readByte()
	if err != nil {
		return err
	}
	if b == '\r' {
		b, err = bc.readByte()
		if err != nil {
			return err
		}
	}
	if b != '\n' {
		return bc.parseError("expected chunk data terminator")
	}
	return nil
}

// ChunkedReader decodes a chunked request body into a lazy sequence of
// decoded-payload buffers, and exposes the post-stream trailers once the
// zero-chunk has been consumed.
type ChunkedReader struct {
	bc             *byteCursor
	maxBodySize    int
	maxTrailerSize int
	delivered      int
	scratch        []byte
	done           bool
	trailers       Header
}

func NewChunkedReader(cr *connReader, maxBodySize, maxTrailerSize int) *ChunkedReader {
	return &ChunkedReader{bc: newByteCursor(cr), maxBodySize: maxBodySize, maxTrailerSize: maxTrailerSize}
}

// Next returns the next chunk of decoded payload, or ErrEndOfStream once
// the zero-chunk and trailers have both been consumed (Trailers is then
// populated). It decodes into an internal scratch buffer reused across
// calls.
func (c *ChunkedReader) Next() ([]byte, error) {
	if c.done {
		return nil, ErrEndOfStream
	}
	size, err := readChunkSizeLine(c.bc)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		if err := c.readTrailers(); err != nil {
			return nil, err
		}
		c.done = true
		return nil, ErrEndOfStream
	}
	if c.maxBodySize > 0 && c.delivered+size > c.maxBodySize {
		return nil, &HeadSizeExceededError{Limit: c.maxBodySize, Size: c.delivered + size}
	}

	if cap(c.scratch) < size {
		c.scratch = make([]byte, size, nextPow2Cap(size))
	}
	buf := c.scratch[:size]
	for i := 0; i < size; i++ {
		b, err := c.bc.readByte()
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	if err := readLineTerminator(c.bc); err != nil {
		return nil, err
	}
	c.delivered += size
	return buf, nil
}

// Trailers returns the trailer multi-map resolved after Next returns
// ErrEndOfStream. It is empty (never nil) if no trailers were sent.
func (c *ChunkedReader) Trailers() Header { return c.trailers }

func (c *ChunkedReader) readTrailers() error {
	start := c.bc.pos
	var acc []byte
	for {
		b, err := c.bc.readByte()
		if err != nil {
			return err
		}
		acc = append(acc, b)
		if c.maxTrailerSize > 0 && len(acc) > c.maxTrailerSize {
			return &TrailerSizeExceededError{Limit: c.maxTrailerSize, Size: len(acc)}
		}
		if idx := indexHeadEnd(acc); idx >= 0 {
			h, err := parseTrailers(acc[:idx], c.maxTrailerSize)
			if err != nil {
				// Rebase block-relative positions onto the body stream.
				if pe, ok := err.(*ParseError); ok {
					pe.Pos += start
					pe.BytesConsumed += start
				}
				return err
			}
			c.trailers = *h
			return nil
		}
	}
}

// ChunkedEncoder wraps a response body as a chunked stream for the
// response writer, emitting through an append-style API so it composes
// with the writer's own timeout/backpressure loop.
type ChunkedEncoder struct {
	trailers *Header
}

func NewChunkedEncoder(trailers *Header) *ChunkedEncoder { return &ChunkedEncoder{trailers: trailers} }

// EncodeChunk appends the wire representation of one chunk: hex-size CRLF,
// the payload, then CRLF.
func (e *ChunkedEncoder) EncodeChunk(dst, payload []byte) []byte {
	dst = appendHexUint(dst, len(payload))
	dst = append(dst, strCRLF...)
	dst = append(dst, payload...)
	dst = append(dst, strCRLF...)
	return dst
}

// EncodeTrailer appends the terminating "0 CRLF [trailers] CRLF".
func (e *ChunkedEncoder) EncodeTrailer(dst []byte) []byte {
	dst = append(dst, '0')
	dst = append(dst, strCRLF...)
	if e.trailers != nil {
		dst = e.trailers.AppendTo(dst)
	}
	dst = append(dst, strCRLF...)
	return dst
}
