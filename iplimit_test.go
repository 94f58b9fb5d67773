package nomagichttp

import (
	"net"
	"testing"

	"github.com/martinandersson/nomagichttp/internal/netpipe"
)

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter()
	for i := 0; i < 3; i++ {
		if !l.acquire("10.0.0.1", 3) {
			t.Fatalf("acquire #%d under the limit must succeed", i+1)
		}
	}
	if l.acquire("10.0.0.1", 3) {
		t.Fatal("acquire over the limit must fail")
	}
	if !l.acquire("10.0.0.2", 3) {
		t.Fatal("another IP must have its own budget")
	}

	l.release("10.0.0.1")
	if !l.acquire("10.0.0.1", 3) {
		t.Fatal("release must free a slot")
	}

	for i := 0; i < 3; i++ {
		l.release("10.0.0.1")
	}
	l.release("10.0.0.2")
	if len(l.counts) != 0 {
		t.Fatalf("fully released IPs must leave the map, got %d entries", len(l.counts))
	}
}

func TestLimitedConnReleasesOnce(t *testing.T) {
	l := newIPLimiter()
	if !l.acquire("10.0.0.9", 1) {
		t.Fatal("acquire failed")
	}

	a, b := netpipe.New()
	defer b.Close()
	c := &limitedConn{Conn: a, ip: "10.0.0.9", limiter: l}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %s", err)
	}
	if len(l.counts) != 0 {
		t.Fatal("slot must be released exactly once")
	}
	if !l.acquire("10.0.0.9", 1) {
		t.Fatal("slot not actually freed")
	}
}

func TestConnIP(t *testing.T) {
	a, b := netpipe.New()
	defer a.Close()
	defer b.Close()
	if ip := connIP(a); ip != "" {
		t.Fatalf("non-TCP transport must report no IP, got %q", ip)
	}

	tc := &tcpAddrConn{addr: &net.TCPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 4711}}
	if ip := connIP(tc); ip != "192.0.2.7" {
		t.Fatalf("connIP = %q", ip)
	}
}

type tcpAddrConn struct {
	net.Conn
	addr net.Addr
}

func (c *tcpAddrConn) RemoteAddr() net.Addr { return c.addr }
