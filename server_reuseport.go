//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package nomagichttp

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenAndServeReusePort is ListenAndServe with SO_REUSEPORT set on the
// listening socket, so several server processes can share addr and have
// the kernel spread accepted connections across them.
func (s *Server) ListenAndServeReusePort(addr string) error {
	lc := net.ListenConfig{Control: setReusePort}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func setReusePort(network, address string, c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return optErr
}
