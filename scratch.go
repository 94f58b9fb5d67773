package nomagichttp

import "github.com/valyala/bytebufferpool"

// Scratch buffers for body transforms are recycled through
// bytebufferpool rather than allocated per response.
var scratchPool bytebufferpool.Pool

func acquireScratch() *bytebufferpool.ByteBuffer {
	return scratchPool.Get()
}

// releaseScratch returns bb to the pool. bb must not be touched
// afterwards.
func releaseScratch(bb *bytebufferpool.ByteBuffer) {
	scratchPool.Put(bb)
}
