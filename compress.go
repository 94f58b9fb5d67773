package nomagichttp

import (
	"github.com/valyala/bytebufferpool"

	"github.com/martinandersson/nomagichttp/internal/compress"
)

// maybeCompressResponse rewrites resp to carry a compressed body when the
// server has compression enabled and the request's Accept-Encoding allows
// it. The rewrite happens before the response processor runs: the body
// length becomes unknown, so the processor's ordinary framing decision
// selects chunked transfer-encoding for it. Framing invariants are thus
// untouched; compression is a pure body transform.
func maybeCompressResponse(req *Request, resp *Response) {
	if req == nil || resp.Body == nil || resp.BodyLength == 0 {
		return
	}
	if isInformational(resp.Status) || resp.Status == 204 || resp.Status == 304 {
		return
	}
	if resp.Headers.Has(strContentEncoding) || resp.Headers.Has(strTransferEncoding) {
		return
	}
	ae, ok := req.Headers.Get(strAcceptEncoding)
	if !ok {
		return
	}
	encoding := compress.Negotiate(ae)
	if encoding == compress.Identity {
		return
	}

	inner := resp.Body
	resp.Headers.Set(strContentEncoding, []byte(encoding))
	resp.Headers.Del(strContentLength)
	resp.SetBodyStream(&compressedBody{inner: inner, encoding: encoding})
}

// compressedBody adapts a ResponseBody by piping its buffers through a
// pooled worker-offloaded compress writer. Each Next call flushes the
// compressor, so the output streams chunk by chunk instead of
// accumulating the whole message.
type compressedBody struct {
	inner    ResponseBody
	encoding string

	w    compress.Writer
	bb   *bytebufferpool.ByteBuffer
	done bool
}

func (b *compressedBody) Next() ([]byte, error) {
	if b.done {
		b.cleanup()
		return nil, ErrEndOfStream
	}
	if b.w == nil {
		b.bb = acquireScratch()
		b.w = compress.AcquireWriter(b.encoding, b.bb)
	}
	for {
		// The previous Next's returned slice has been written out by the
		// caller already, so the scratch buffer can be reclaimed.
		b.bb.Reset()

		buf, err := b.inner.Next()
		if err == ErrEndOfStream {
			b.done = true
			if cerr := b.w.Close(); cerr != nil {
				b.cleanup()
				return nil, cerr
			}
			return b.bb.B, nil
		}
		if err != nil {
			b.cleanup()
			return nil, err
		}
		if len(buf) == 0 {
			continue
		}
		if _, err := b.w.Write(buf); err != nil {
			b.cleanup()
			return nil, err
		}
		if err := b.w.Flush(); err != nil {
			b.cleanup()
			return nil, err
		}
		if len(b.bb.B) > 0 {
			return b.bb.B, nil
		}
	}
}

func (b *compressedBody) cleanup() {
	if b.w != nil {
		compress.ReleaseWriter(b.encoding, b.w)
		b.w = nil
	}
	if b.bb != nil {
		releaseScratch(b.bb)
		b.bb = nil
	}
}
