package nomagichttp

import (
	"bytes"
	"fmt"
)

// RequestLine is the parsed {method, target, version} triple.
type RequestLine struct {
	Method       []byte
	Target       []byte
	VersionMajor int
	VersionMinor int
}

// isRequestSpace reports start-line whitespace: SP, HTAB, VT, FF, or a
// bare CR all count as a single token separator.
func isRequestSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\v', '\f', '\r':
		return true
	}
	return false
}

const (
	rlStateMethod = iota
	rlStateTarget
	rlStateVersion
	rlStateDone
)

// parseRequestLine runs the METHOD -> TARGET -> VERSION -> DONE state
// machine over a single line (no LF, CR already stripped by indexHeadEnd's
// caller via firstLine). An empty method or target is a parse error.
func parseRequestLine(line []byte) (*RequestLine, error) {
	rl := &RequestLine{}
	state := rlStateMethod
	tokStart := -1

	finalize := func(i int) error {
		tok := line[tokStart:i]
		switch state {
		case rlStateMethod:
			if len(tok) == 0 {
				return fmt.Errorf("empty method")
			}
			rl.Method = tok
			state = rlStateTarget
		case rlStateTarget:
			if len(tok) == 0 {
				return fmt.Errorf("empty request-target")
			}
			rl.Target = tok
			state = rlStateVersion
		case rlStateVersion:
			if len(tok) == 0 {
				return fmt.Errorf("empty version")
			}
			major, minor, err := parseHTTPVersion(tok)
			if err != nil {
				return err
			}
			rl.VersionMajor, rl.VersionMinor = major, minor
			state = rlStateDone
		}
		tokStart = -1
		return nil
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		if isRequestSpace(c) {
			if tokStart >= 0 {
				if err := finalize(i); err != nil {
					pe := &ParseError{Kind: "RequestLineParse", Cur: c, Pos: int64(i), BytesConsumed: int64(i), Msg: err.Error()}
					if i > 0 {
						pe.Prev = line[i-1]
					}
					return nil, pe
				}
				if state == rlStateDone {
					// Trailing whitespace after version is tolerated; stop.
					return rl, nil
				}
			}
			continue
		}
		if tokStart < 0 {
			tokStart = i
		}
	}

	if tokStart >= 0 {
		if err := finalize(len(line)); err != nil {
			return nil, lineEndParseError(line, err.Error())
		}
	}
	if state != rlStateDone {
		return nil, lineEndParseError(line, "incomplete request line")
	}
	return rl, nil
}

// lineEndParseError anchors a failure at the end of the start-line, with
// the last consumed byte as context.
func lineEndParseError(line []byte, msg string) *ParseError {
	pe := &ParseError{Kind: "RequestLineParse", Pos: int64(len(line)), BytesConsumed: int64(len(line)), Msg: msg}
	if len(line) > 0 {
		pe.Prev = line[len(line)-1]
	}
	return pe
}

func parseHTTPVersion(tok []byte) (major, minor int, err error) {
	if len(tok) != 8 || !bytes.HasPrefix(tok, []byte("HTTP/")) || tok[6] != '.' {
		return 0, 0, fmt.Errorf("unsupported HTTP version %q", tok)
	}
	if tok[5] < '0' || tok[5] > '9' || tok[7] < '0' || tok[7] > '9' {
		return 0, 0, fmt.Errorf("unsupported HTTP version %q", tok)
	}
	return int(tok[5] - '0'), int(tok[7] - '0'), nil
}

// firstLine splits head (as returned by readHead) into its first line and
// the remainder (the header block), tolerating the same lenient
// terminators as indexHeadEnd.
func firstLine(head []byte) (line, rest []byte) {
	i := bytes.IndexByte(head, '\n')
	if i < 0 {
		return head, nil
	}
	end := i
	if end > 0 && head[end-1] == '\r' {
		end--
	}
	return head[:end], head[i+1:]
}
