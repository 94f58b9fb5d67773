package nomagichttp

import "testing"

func TestParseHead(t *testing.T) {
	head := []byte("POST /x HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n")
	ph, err := parseHead(head, 0)
	if err != nil {
		t.Fatalf("parseHead: %s", err)
	}
	if string(ph.Line.Method) != "POST" || string(ph.Line.Target) != "/x" {
		t.Fatalf("unexpected request line %q %q", ph.Line.Method, ph.Line.Target)
	}
	if v, _ := ph.Headers.GetString("host"); v != "example.com" {
		t.Fatalf("unexpected Host %q", v)
	}
	if v, _ := ph.Headers.GetString("content-length"); v != "5" {
		t.Fatalf("unexpected Content-Length %q", v)
	}
}

func TestParseHeadNoHeaders(t *testing.T) {
	ph, err := parseHead([]byte("GET / HTTP/1.1\r\n"), 0)
	if err != nil {
		t.Fatalf("parseHead: %s", err)
	}
	if ph.Headers.Len() != 0 {
		t.Fatalf("expected no headers, got %d", ph.Headers.Len())
	}
}

func TestParseHeaderBlockFolding(t *testing.T) {
	block := []byte("X-Folded: first\r\n  second\r\n\tthird\r\nX-Plain: v\r\n")
	h, err := parseHeaderBlock(block)
	if err != nil {
		t.Fatalf("parseHeaderBlock: %s", err)
	}
	if v, _ := h.GetString("x-folded"); v != "first second third" {
		t.Fatalf("folded value = %q, want %q", v, "first second third")
	}
	if v, _ := h.GetString("x-plain"); v != "v" {
		t.Fatalf("plain value = %q", v)
	}
}

func TestParseHeaderBlockLenientTerminators(t *testing.T) {
	h, err := parseHeaderBlock([]byte("A: 1\nB: 2\n"))
	if err != nil {
		t.Fatalf("parseHeaderBlock with bare LF: %s", err)
	}
	if v, _ := h.GetString("a"); v != "1" {
		t.Fatalf("A = %q", v)
	}
	if v, _ := h.GetString("b"); v != "2" {
		t.Fatalf("B = %q", v)
	}
}

func TestParseHeaderBlockEmptyValue(t *testing.T) {
	h, err := parseHeaderBlock([]byte("X-Empty:\r\n"))
	if err != nil {
		t.Fatalf("parseHeaderBlock: %s", err)
	}
	v, ok := h.GetString("x-empty")
	if !ok || v != "" {
		t.Fatalf("empty value must be allowed, got %q ok=%v", v, ok)
	}
}

func TestParseHeaderBlockDuplicates(t *testing.T) {
	h, err := parseHeaderBlock([]byte("Via: a\r\nVia: b\r\n"))
	if err != nil {
		t.Fatalf("parseHeaderBlock: %s", err)
	}
	got := h.Values([]byte("via"))
	if len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "b" {
		t.Fatalf("duplicates must be preserved in order, got %q", got)
	}
}

func TestParseHeaderBlockErrors(t *testing.T) {
	for _, in := range []string{
		"No-Colon-Line\r\n",
		"Bad Key: v\r\n",
		"Bad\x01Key: v\r\n",
		": empty-name\r\n",
		"X: bad\x00value\r\n",
		" Leading-Space: v\r\n",
	} {
		if _, err := parseHeaderBlock([]byte(in)); err == nil {
			t.Errorf("parseHeaderBlock(%q): expected error", in)
		}
	}
}

func TestParseHeaderBlockErrorPositions(t *testing.T) {
	t.Run("invalid key byte", func(t *testing.T) {
		block := []byte("Good: 1\r\nBad\x01Key: v\r\n")
		_, err := parseHeaderBlock(block)
		pe, ok := err.(*ParseError)
		if !ok {
			t.Fatalf("expected ParseError, got %v", err)
		}
		// The \x01 inside the second field name sits at offset 12.
		if pe.Pos != 12 || pe.Cur != 0x01 || pe.Prev != 'd' {
			t.Fatalf("pos=%d cur=%q prev=%q, want 12 %q %q", pe.Pos, pe.Cur, pe.Prev, byte(0x01), byte('d'))
		}
		if pe.BytesConsumed < pe.Pos {
			t.Fatalf("consumed %d < pos %d", pe.BytesConsumed, pe.Pos)
		}
	})

	t.Run("invalid value byte", func(t *testing.T) {
		block := []byte("A: ok\r\nB: b\x00ad\r\n")
		_, err := parseHeaderBlock(block)
		pe, ok := err.(*ParseError)
		if !ok {
			t.Fatalf("expected ParseError, got %v", err)
		}
		if pe.Pos != 11 || pe.Cur != 0 || pe.Prev != 'b' {
			t.Fatalf("pos=%d cur=%q prev=%q, want 11 NUL %q", pe.Pos, pe.Cur, pe.Prev, byte('b'))
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		block := []byte("No-Colon-Line\r\n")
		_, err1 := parseHeaderBlock(block)
		_, err2 := parseHeaderBlock(block)
		pe1, ok1 := err1.(*ParseError)
		pe2, ok2 := err2.(*ParseError)
		if !ok1 || !ok2 {
			t.Fatalf("expected ParseErrors, got %v / %v", err1, err2)
		}
		if pe1.Pos != pe2.Pos || pe1.BytesConsumed != pe2.BytesConsumed {
			t.Fatalf("positions differ for identical input: %+v vs %+v", pe1, pe2)
		}
	})
}

func TestParseHeadErrorPositionAbsolute(t *testing.T) {
	// Header-block positions must be rebased past the request line.
	head := []byte("GET / HTTP/1.1\r\nBad\x01: v\r\n")
	_, err := parseHead(head, 0)
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected ParseError, got %v", err)
	}
	// The \x01 sits at offset 19 of the whole head.
	if pe.Pos != 19 || pe.Cur != 0x01 {
		t.Fatalf("pos=%d cur=%q, want 19 %q", pe.Pos, pe.Cur, byte(0x01))
	}
}

func TestParseTrailers(t *testing.T) {
	h, err := parseTrailers([]byte("X-Checksum: abc\r\n"), 0)
	if err != nil {
		t.Fatalf("parseTrailers: %s", err)
	}
	if v, _ := h.GetString("x-checksum"); v != "abc" {
		t.Fatalf("trailer = %q", v)
	}
}

func TestParseTrailersForbiddenNames(t *testing.T) {
	for _, in := range []string{
		"Content-Length: 5\r\n",
		"Transfer-Encoding: chunked\r\n",
		"Host: evil\r\n",
		"Authorization: Basic x\r\n",
	} {
		if _, err := parseTrailers([]byte(in), 0); err == nil {
			t.Errorf("parseTrailers(%q): expected error", in)
		}
	}
}

func TestParseTrailersSizeCap(t *testing.T) {
	block := []byte("X-Big: 0123456789012345678901234567890123456789\r\n")
	_, err := parseTrailers(block, 8)
	if _, ok := err.(*TrailerSizeExceededError); !ok {
		t.Fatalf("expected TrailerSizeExceededError, got %v", err)
	}
}
