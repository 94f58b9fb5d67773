package nomagichttp

import (
	"net"
	"sync"
)

// ipLimiter caps the number of concurrently open connections per client
// IP. This is accept-time admission control only; the exchange loop
// never sees an over-limit connection.
type ipLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newIPLimiter() *ipLimiter {
	return &ipLimiter{counts: make(map[string]int)}
}

// acquire admits one more connection from ip if doing so keeps the count
// at or below limit.
func (l *ipLimiter) acquire(ip string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[ip] >= limit {
		return false
	}
	l.counts[ip]++
	return true
}

func (l *ipLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := l.counts[ip]; n > 1 {
		l.counts[ip] = n - 1
	} else {
		delete(l.counts, ip)
	}
}

// limitedConn ties a counted connection's slot to its Close, which may
// be called more than once.
type limitedConn struct {
	net.Conn
	ip      string
	limiter *ipLimiter
	once    sync.Once
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { c.limiter.release(c.ip) })
	return err
}

// connIP returns the remote IP of a TCP connection, or "" when the
// transport has no usable IP address (per-IP limiting is then skipped).
func connIP(c net.Conn) string {
	addr, ok := c.RemoteAddr().(*net.TCPAddr)
	if !ok || addr.IP == nil {
		return ""
	}
	return addr.IP.String()
}
