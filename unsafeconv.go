package nomagichttp

import "unsafe"

// b2s views b as a string without copying. The caller must not mutate b
// while the returned string is alive.
func b2s(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// s2b views s as a byte slice without copying. The returned slice must
// not be mutated.
func s2b(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
