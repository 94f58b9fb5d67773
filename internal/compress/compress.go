// Package compress provides negotiated gzip/brotli response-body
// compression. Flate work runs on a small fixed set of worker
// goroutines, so a compressed response costs a queue hop instead of a
// deep stack on every connection goroutine, and finished writers are
// recycled through a bounded LIFO freelist so hot connections keep
// reusing warm flate state.
package compress

import (
	"bytes"
	"io"
	"runtime"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Writer is the common subset of the compress/* writers: incremental
// Write with explicit Flush, a stream-terminating Close, and Reset for
// reuse against a new destination.
type Writer interface {
	Write(p []byte) (int, error)
	Flush() error
	Close() error
	Reset(w io.Writer)
}

// Supported content codings. Identity means "do not compress".
const (
	Identity = ""
	Gzip     = "gzip"
	Brotli   = "br"
)

// Negotiate picks the content coding to apply given an Accept-Encoding
// header value, preferring brotli over gzip when the client allows both.
// An explicit q=0 on a coding disables it. Returns Identity when neither
// coding is acceptable.
func Negotiate(acceptEncoding []byte) string {
	br, gz := false, false
	for _, part := range bytes.Split(acceptEncoding, []byte(",")) {
		token, params, _ := bytes.Cut(part, []byte(";"))
		token = bytes.TrimSpace(token)
		if isQZero(params) {
			continue
		}
		switch {
		case bytes.EqualFold(token, []byte(Brotli)):
			br = true
		case bytes.EqualFold(token, []byte(Gzip)):
			gz = true
		}
	}
	switch {
	case br:
		return Brotli
	case gz:
		return Gzip
	}
	return Identity
}

func isQZero(params []byte) bool {
	i := bytes.Index(params, []byte("q="))
	if i < 0 {
		return false
	}
	v := params[i+2:]
	if j := bytes.IndexByte(v, ';'); j >= 0 {
		v = v[:j]
	}
	v = bytes.TrimSpace(v)
	// "0", "0.", "0.0", "0.00", "0.000" are all qvalue zero.
	for len(v) > 0 && (v[len(v)-1] == '0' || v[len(v)-1] == '.') {
		v = v[:len(v)-1]
	}
	return len(v) == 0
}

// flateOps is drained by a fixed set of worker goroutines; every
// Write/Flush/Close/Reset of an underlying flate writer happens on one
// of them, keeping the deep compression stacks off connection
// goroutines.
var flateOps = make(chan func())

func init() {
	for i := 0; i < runtime.GOMAXPROCS(0); i++ {
		go func() {
			for op := range flateOps {
				op()
			}
		}()
	}
}

// offloadWriter satisfies Writer by marshalling each call onto the
// worker pool. The underlying flate writer always targets the staging
// buffer; staged output is copied to dst after each op, on the caller's
// goroutine, so dst itself never crosses into a worker.
type offloadWriter struct {
	zw    Writer
	dst   io.Writer
	stage bytes.Buffer
	done  chan error
}

func newOffloadWriter(newFlate func(io.Writer) Writer) *offloadWriter {
	w := &offloadWriter{done: make(chan error, 1)}
	w.zw = newFlate(&w.stage)
	return w
}

func (w *offloadWriter) do(op func() error) error {
	flateOps <- func() { w.done <- op() }
	err := <-w.done
	if w.stage.Len() > 0 {
		if w.dst != nil {
			if _, werr := w.dst.Write(w.stage.Bytes()); err == nil {
				err = werr
			}
		}
		w.stage.Reset()
	}
	return err
}

func (w *offloadWriter) Write(p []byte) (int, error) {
	err := w.do(func() error {
		_, zerr := w.zw.Write(p)
		return zerr
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *offloadWriter) Flush() error { return w.do(w.zw.Flush) }
func (w *offloadWriter) Close() error { return w.do(w.zw.Close) }

func (w *offloadWriter) Reset(dst io.Writer) {
	w.dst = dst
	_ = w.do(func() error {
		w.stage.Reset()
		w.zw.Reset(&w.stage)
		return nil
	})
}

const maxPooledWriters = 256

// writerStack is a bounded LIFO freelist: the most recently released
// writer goes out first, its flate state still warm. Overflow past the
// bound is simply dropped for the collector.
type writerStack struct {
	mu       sync.Mutex
	idle     []*offloadWriter
	newFlate func(io.Writer) Writer
}

func (s *writerStack) get() *offloadWriter {
	s.mu.Lock()
	var w *offloadWriter
	if n := len(s.idle); n > 0 {
		w = s.idle[n-1]
		s.idle[n-1] = nil
		s.idle = s.idle[:n-1]
	}
	s.mu.Unlock()
	if w == nil {
		w = newOffloadWriter(s.newFlate)
	}
	return w
}

func (s *writerStack) put(w *offloadWriter) {
	s.mu.Lock()
	if len(s.idle) < maxPooledWriters {
		s.idle = append(s.idle, w)
	}
	s.mu.Unlock()
}

var (
	gzipWriters = &writerStack{newFlate: func(w io.Writer) Writer {
		zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			panic("BUG: gzip.NewWriterLevel: " + err.Error())
		}
		return zw
	}}
	brotliWriters = &writerStack{newFlate: func(w io.Writer) Writer {
		return brotli.NewWriterLevel(w, brotli.DefaultCompression)
	}}
)

func stackFor(encoding string) *writerStack {
	switch encoding {
	case Gzip:
		return gzipWriters
	case Brotli:
		return brotliWriters
	}
	return nil
}

// AcquireWriter returns a writer for the given coding, reset to write
// its compressed output to dst. Release it with ReleaseWriter once the
// stream has been closed.
func AcquireWriter(encoding string, dst io.Writer) Writer {
	s := stackFor(encoding)
	if s == nil {
		panic("BUG: unsupported content coding " + encoding)
	}
	w := s.get()
	w.Reset(dst)
	return w
}

// ReleaseWriter returns w to the freelist backing its coding. w must not
// be used afterwards.
func ReleaseWriter(encoding string, w Writer) {
	if s := stackFor(encoding); s != nil {
		if ow, ok := w.(*offloadWriter); ok {
			s.put(ow)
		}
	}
}
