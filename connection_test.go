package nomagichttp

import (
	"testing"

	"github.com/martinandersson/nomagichttp/internal/netpipe"
)

func TestConnectionLifecycle(t *testing.T) {
	srv, cli := netpipe.New()
	defer cli.Close()

	c := newConnection(srv, 2, 16)
	if !c.IsOpenForRead() || !c.IsOpenForWrite() {
		t.Fatal("fresh connection must be open both ways")
	}

	c.ShutdownRead()
	if c.IsOpenForRead() {
		t.Fatal("read must stay shut once shut")
	}
	if !c.IsOpenForWrite() {
		t.Fatal("read shutdown must not affect the write side")
	}
	c.ShutdownRead() // idempotent

	c.ShutdownWrite()
	if c.IsOpenForWrite() {
		t.Fatal("write must stay shut once shut")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}
	if c.IsOpenForRead() || c.IsOpenForWrite() {
		t.Fatal("closed implies both sides shut")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %s", err)
	}
}

func TestConnectionCloseImpliesShutdown(t *testing.T) {
	srv, cli := netpipe.New()
	defer cli.Close()

	c := newConnection(srv, 2, 16)
	c.Attrs.Set("k", "v")
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}
	if c.IsOpenForRead() || c.IsOpenForWrite() {
		t.Fatal("close must shut both directions")
	}
	if c.Attrs.Get("k") != nil {
		t.Fatal("close must reset connection attributes")
	}
}
