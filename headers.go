package nomagichttp

import "bytes"

// headerKV is one name/value pair in declaration order.
type headerKV struct {
	key   []byte
	value []byte
}

// Header is an ordered, case-insensitive multi-map of header fields.
// Duplicate names are preserved in declaration order.
type Header struct {
	kvs []headerKV
}

// Add appends a key/value pair, preserving any existing values for key.
func (h *Header) Add(key, value []byte) {
	h.kvs = append(h.kvs, headerKV{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// AddString is the string-argument convenience form of Add.
func (h *Header) AddString(key, value string) {
	h.Add(s2b(key), s2b(value))
}

// Set replaces all existing values for key with a single value, or appends
// one if key is not already present.
func (h *Header) Set(key, value []byte) {
	h.Del(key)
	h.Add(key, value)
}

// Del removes all values for key.
func (h *Header) Del(key []byte) {
	kvs := h.kvs[:0]
	for _, kv := range h.kvs {
		if !bytes.EqualFold(kv.key, key) {
			kvs = append(kvs, kv)
		}
	}
	h.kvs = kvs
}

// Get returns the first value for key, if present.
func (h *Header) Get(key []byte) ([]byte, bool) {
	for _, kv := range h.kvs {
		if bytes.EqualFold(kv.key, key) {
			return kv.value, true
		}
	}
	return nil, false
}

// GetString is the string-return convenience form of Get.
func (h *Header) GetString(key string) (string, bool) {
	v, ok := h.Get([]byte(key))
	if !ok {
		return "", false
	}
	return string(v), true
}

// Has reports whether key appears at least once.
func (h *Header) Has(key []byte) bool {
	_, ok := h.Get(key)
	return ok
}

// Values returns every value for key, in declaration order.
func (h *Header) Values(key []byte) [][]byte {
	var out [][]byte
	for _, kv := range h.kvs {
		if bytes.EqualFold(kv.key, key) {
			out = append(out, kv.value)
		}
	}
	return out
}

// VisitAll calls f for every key/value pair in declaration order. f must
// not retain key or value past the call.
func (h *Header) VisitAll(f func(key, value []byte)) {
	for _, kv := range h.kvs {
		f(kv.key, kv.value)
	}
}

// Len returns the number of key/value pairs, counting duplicates.
func (h *Header) Len() int { return len(h.kvs) }

// Reset clears the header for reuse, keeping the backing array.
func (h *Header) Reset() { h.kvs = h.kvs[:0] }

// HasToken reports whether key's value(s) contain token as a comma-separated
// element (case-insensitively), as used for Connection and Transfer-Encoding.
func (h *Header) HasToken(key, token []byte) bool {
	for _, kv := range h.kvs {
		if !bytes.EqualFold(kv.key, key) {
			continue
		}
		for _, part := range bytes.Split(kv.value, []byte(",")) {
			if bytes.EqualFold(bytes.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// AppendTo writes "Key: Value\r\n" for every pair, in wire order. The
// writer always emits strict CRLF regardless of what the parser accepted
// on input.
func (h *Header) AppendTo(dst []byte) []byte {
	for _, kv := range h.kvs {
		dst = append(dst, kv.key...)
		dst = append(dst, strColonSpace...)
		dst = append(dst, kv.value...)
		dst = append(dst, strCRLF...)
	}
	return dst
}
