package nomagichttp

import (
	"io"
	"net"
	"sync"
)

// bufHolder is a borrowed, fixed-capacity buffer handed downstream by a
// connReader. Exactly one holder exists per physical buffer at any
// time; release is idempotent and either re-delivers the residual bytes
// at the front of the queue or returns the buffer to the free pool.
type bufHolder struct {
	buf      []byte // full-capacity backing array
	n        int    // bytes filled by the last socket read
	pos      int    // bytes already consumed by the downstream parser
	released bool
	r        *connReader
}

// bytes returns the unconsumed portion of the holder's filled data.
func (h *bufHolder) bytes() []byte {
	if h == nil {
		return nil
	}
	return h.buf[h.pos:h.n]
}

// release returns consumed bytes of the holder to the reader. consumed must
// be <= len(h.bytes()). Calling release twice on the same holder is a no-op.
func (h *bufHolder) release(consumed int) {
	if h == nil || h.released {
		return
	}
	h.pos += consumed
	h.released = true
	h.r.release(h)
}

// connReader owns BufferCount fixed BufferSize buffers for one
// connection and streams socket bytes downstream as a lazy,
// non-restartable sequence of bufHolder values under demand-driven flow
// control.
//
// The free pool and the background read loop together guarantee the reader
// never issues a new socket read unless a free buffer exists: the read
// loop only proceeds past <-free once a buffer has actually been handed
// back. readable is a bounded channel acting as the FIFO of filled
// buffers; pending holds at most one re-delivered holder, checked ahead of
// readable so residual bytes are always served before newly read ones.
type connReader struct {
	conn net.Conn

	free     chan []byte
	readable chan *bufHolder
	done     chan struct{}

	mu      sync.Mutex
	pending *bufHolder
	err     error
}

func newConnReader(conn net.Conn, count, size int) *connReader {
	if count < 1 {
		count = 1
	}
	if size < 1 {
		size = 1
	}
	r := &connReader{
		conn:     conn,
		free:     make(chan []byte, count),
		readable: make(chan *bufHolder, count),
		done:     make(chan struct{}),
	}
	for i := 0; i < count; i++ {
		r.free <- make([]byte, size)
	}
	go r.loop()
	return r
}

func (r *connReader) loop() {
	for {
		var buf []byte
		select {
		case buf = <-r.free:
		case <-r.done:
			return
		}

		n, err := r.conn.Read(buf)
		if n > 0 {
			h := &bufHolder{buf: buf, n: n, r: r}
			select {
			case r.readable <- h:
			case <-r.done:
				return
			}
		} else {
			// Nothing read: the buffer was never handed out, return it
			// directly so the loop doesn't starve the free pool.
			select {
			case r.free <- buf:
			case <-r.done:
			}
		}

		if err != nil {
			if err == io.EOF {
				err = ErrEndOfStream
			} else if isTimeoutErr(err) {
				err = ErrRequestBodyTimeout
			}
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			select {
			case r.readable <- &bufHolder{r: r, released: true}: // EOS sentinel
			case <-r.done:
			}
			return
		}
	}
}

// next returns the next holder in wire order, blocking until bytes are
// available, the stream ends, or the connection is closed.
func (r *connReader) next() (*bufHolder, error) {
	r.mu.Lock()
	if r.pending != nil {
		h := r.pending
		r.pending = nil
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	select {
	case h, ok := <-r.readable:
		if !ok {
			return nil, io.EOF
		}
		if h.n == 0 && h.buf == nil {
			// Put the sentinel back so later calls also report the end.
			select {
			case r.readable <- h:
			default:
			}
			r.mu.Lock()
			err := r.err
			r.mu.Unlock()
			if err == nil {
				err = ErrEndOfStream
			}
			return nil, err
		}
		return h, nil
	case <-r.done:
		return nil, ErrClosedStream
	}
}

// release is invoked by bufHolder.release. A holder with residual bytes is
// requeued at the front (via pending); a fully drained holder's buffer
// returns to the free pool.
func (r *connReader) release(h *bufHolder) {
	if h.buf == nil {
		return // EOS sentinel, nothing to return
	}
	if h.pos < h.n {
		// Re-delivery is a fresh lease on the same holder.
		h.released = false
		r.mu.Lock()
		r.pending = h
		r.mu.Unlock()
		return
	}
	select {
	case r.free <- h.buf[:cap(h.buf)]:
	case <-r.done:
	}
}

// close terminates the background read loop. Safe to call more than once.
func (r *connReader) close() {
	r.mu.Lock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.mu.Unlock()
}

// indexHeadEnd returns the index just past the first blank line (a bare
// LF, or CRLF) in b, i.e. the end of a request head or a chunked
// trailer block, or -1 if no blank line has been seen yet. A lone LF
// terminates a line; a CR immediately before it is discarded.
func indexHeadEnd(b []byte) int {
	lineStart := 0
	for i := 0; i < len(b); i++ {
		if b[i] != '\n' {
			continue
		}
		end := i
		if end > lineStart && b[end-1] == '\r' {
			end--
		}
		if end == lineStart {
			return i + 1
		}
		lineStart = i + 1
	}
	return -1
}

// readHead accumulates bytes from cr until a full head (terminated by a
// blank line) is available, enforcing maxSize. It returns the head bytes
// up to and including the blank-line terminator, and leaves any bytes
// that belong to the following message released back into cr's
// front-of-queue slot.
func readHead(cr *connReader, maxSize int) ([]byte, error) {
	var acc []byte
	for {
		h, err := cr.next()
		if err != nil {
			if err == ErrEndOfStream && len(acc) > 0 {
				// The peer went away mid-head; bytes were received, so
				// this is a parse failure, not a silent client abort.
				return nil, &ParseError{Kind: "RequestLineParse", Pos: int64(len(acc)), BytesConsumed: int64(len(acc)), Msg: "unexpected end of stream in request head"}
			}
			return nil, err
		}
		b := h.bytes()
		acc = append(acc, b...)

		if idx := indexHeadEnd(acc); idx >= 0 {
			overshoot := len(acc) - idx
			h.release(len(b) - overshoot)
			if maxSize > 0 && idx > maxSize {
				return nil, &HeadSizeExceededError{Limit: maxSize, Size: idx}
			}
			return acc[:idx], nil
		}

		h.release(len(b))
		if maxSize > 0 && len(acc) > maxSize {
			return nil, &HeadSizeExceededError{Limit: maxSize, Size: len(acc)}
		}
	}
}
