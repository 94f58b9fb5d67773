package nomagichttp

import "bytes"

// Target is the normalized view of a request-target: raw bytes plus
// lazily-decoded segments, query, and fragment. Percent-decoded forms
// are cached on first access.
type Target struct {
	Raw []byte

	rawPath  []byte
	rawQuery []byte
	Fragment []byte

	segments        []string
	segmentsDecoded bool

	query       map[string][]string
	queryParsed bool
}

// ParseTarget splits raw into path/query/fragment and prepares lazy
// segment/query decoding. Only the fragment is percent-decoded here; path
// segments and the query are decoded on first call to Segments or Query.
func ParseTarget(raw []byte) *Target {
	t := &Target{Raw: raw}
	rest := raw
	if i := bytes.IndexByte(rest, '#'); i >= 0 {
		t.Fragment = decodePercent(rest[i+1:])
		rest = rest[:i]
	}
	if i := bytes.IndexByte(rest, '?'); i >= 0 {
		t.rawQuery = rest[i+1:]
		rest = rest[:i]
	}
	t.rawPath = rest
	return t
}

// Segments returns the normalized, percent-decoded path segments: split
// on '/', empty segments and "." dropped, ".." folding up to (but never
// past) the root.
func (t *Target) Segments() []string {
	if t.segmentsDecoded {
		return t.segments
	}
	t.segmentsDecoded = true

	var out []string
	for _, raw := range bytes.Split(t.rawPath, strSlash) {
		if len(raw) == 0 {
			continue
		}
		seg := string(decodePercent(raw))
		switch seg {
		case ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		default:
			out = append(out, seg)
		}
	}
	t.segments = out
	return t.segments
}

// Query returns the decoded query parameters as a map of name to value
// list, percent-decoding both name and value and treating '+' as
// space.
func (t *Target) Query() map[string][]string {
	if t.queryParsed {
		return t.query
	}
	t.queryParsed = true
	t.query = map[string][]string{}
	if len(t.rawQuery) == 0 {
		return t.query
	}
	for _, pair := range bytes.Split(t.rawQuery, []byte("&")) {
		if len(pair) == 0 {
			continue
		}
		var k, v []byte
		if i := bytes.IndexByte(pair, '='); i >= 0 {
			k = decodeArgAppend(nil, pair[:i], true)
			v = decodeArgAppend(nil, pair[i+1:], true)
		} else {
			k = decodeArgAppend(nil, pair, true)
		}
		key := string(k)
		t.query[key] = append(t.query[key], string(v))
	}
	return t.query
}

// decodePercent is the plain percent-decode (no '+' folding) used by
// Segments and for the fragment; Query folds '+' via decodeArgAppend.
func decodePercent(src []byte) []byte {
	return decodeArgAppend(nil, src, false)
}

// decodeArgAppend percent-decodes src into dst, optionally folding '+'
// to space. Malformed escapes pass through undecoded.
func decodeArgAppend(dst, src []byte, decodePlus bool) []byte {
	for i, n := 0, len(src); i < n; i++ {
		c := src[i]
		switch {
		case c == '%':
			if i+2 >= n {
				return append(dst, src[i:]...)
			}
			x1 := hexbyte2int(src[i+1])
			x2 := hexbyte2int(src[i+2])
			if x1 < 0 || x2 < 0 {
				dst = append(dst, c)
			} else {
				dst = append(dst, byte(x1<<4|x2))
				i += 2
			}
		case decodePlus && c == '+':
			dst = append(dst, ' ')
		default:
			dst = append(dst, c)
		}
	}
	return dst
}
