package nomagichttp

import "testing"

func TestParseUint(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{"5", 5, true},
		{"123456", 123456, true},
		{"", 0, false},
		{"12a", 0, false},
		{"a12", 0, false},
		{"-1", 0, false},
		{"99999999999999999999", 0, false},
	} {
		got, err := parseUint([]byte(tc.in))
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("parseUint(%q) = %d, %v, want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("parseUint(%q): expected error", tc.in)
		}
	}
}

func TestAppendUint(t *testing.T) {
	for _, tc := range []struct {
		in   int
		want string
	}{
		{0, "0"},
		{9, "9"},
		{1234567, "1234567"},
	} {
		if got := appendUint(nil, tc.in); string(got) != tc.want {
			t.Errorf("appendUint(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAppendHexUint(t *testing.T) {
	for _, tc := range []struct {
		in   int
		want string
	}{
		{0, "0"},
		{4, "4"},
		{255, "ff"},
		{4096, "1000"},
	} {
		if got := appendHexUint(nil, tc.in); string(got) != tc.want {
			t.Errorf("appendHexUint(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNextPow2Cap(t *testing.T) {
	for _, tc := range []struct {
		in, want int
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{2, 2},
		{3, 4},
		{1000, 1024},
		{4096, 4096},
		{200 * 1024 * 1024, 200 * 1024 * 1024},
	} {
		if got := nextPow2Cap(tc.in); got != tc.want {
			t.Errorf("nextPow2Cap(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestHexbyte2int(t *testing.T) {
	for _, tc := range []struct {
		in   byte
		want int
	}{
		{'0', 0},
		{'9', 9},
		{'a', 10},
		{'F', 15},
		{'g', -1},
		{' ', -1},
	} {
		if got := hexbyte2int(tc.in); got != tc.want {
			t.Errorf("hexbyte2int(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
