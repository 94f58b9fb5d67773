package nomagichttp

import (
	"net"
	"sync"
)

// Connection is the per-socket state: monotonic read/write/closed
// shutdown flags plus the scratch Attrs map. Exactly one goroutine (the
// exchange loop) drives a Connection's I/O and mutates its flags/attrs
// at a time, so no locking is needed on that hot path -- the mutex here
// only guards the flags against a concurrent out-of-band Close (e.g. a
// server-shutdown sweep closing idle conns).
type Connection struct {
	Conn   net.Conn
	Reader *connReader
	Attrs  Attrs

	mu            sync.Mutex
	readShutdown  bool
	writeShutdown bool
	closed        bool
}

func newConnection(conn net.Conn, bufCount, bufSize int) *Connection {
	return &Connection{
		Conn:   conn,
		Reader: newConnReader(conn, bufCount, bufSize),
	}
}

func (c *Connection) IsOpenForRead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.readShutdown && !c.closed
}

func (c *Connection) IsOpenForWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.writeShutdown && !c.closed
}

// ShutdownRead marks the read side closed. Idempotent.
func (c *Connection) ShutdownRead() {
	c.mu.Lock()
	c.readShutdown = true
	c.mu.Unlock()
	c.Reader.close()
}

// ShutdownWrite marks the write side closed. Idempotent.
func (c *Connection) ShutdownWrite() {
	c.mu.Lock()
	c.writeShutdown = true
	c.mu.Unlock()
}

// Close shuts down both directions and closes the socket. Idempotent, and
// establishes the invariant closed => read_shutdown && write_shutdown.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.readShutdown = true
	c.writeShutdown = true
	c.mu.Unlock()
	c.Reader.close()
	c.Attrs.Reset()
	return c.Conn.Close()
}
