package nomagichttp

import (
	"net"
	"time"
)

// DeadlineListener wraps a net.Listener so every accepted connection
// arms a fresh deadline before each read and write. A peer that goes
// quiet mid-operation gets timed out by the kernel instead of holding
// its connection goroutine forever.
type DeadlineListener struct {
	net.Listener

	// PerReadTimeout bounds each Read on accepted connections. Zero
	// leaves reads unbounded.
	PerReadTimeout time.Duration

	// PerWriteTimeout bounds each Write on accepted connections. Zero
	// leaves writes unbounded.
	PerWriteTimeout time.Duration
}

func (ln *DeadlineListener) Accept() (net.Conn, error) {
	c, err := ln.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &deadlineConn{Conn: c, read: ln.PerReadTimeout, write: ln.PerWriteTimeout}, nil
}

type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
