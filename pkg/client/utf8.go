package client

import "unicode/utf8"

// utf8Assembler reassembles text from a byte stream whose read boundaries
// may fall inside a multi-byte UTF-8 sequence. Bytes of an incomplete
// trailing rune are held back until the next push completes them.
type utf8Assembler struct {
	pending []byte
}

// push appends p to the pending bytes and returns the longest prefix that
// ends on a rune boundary.
func (a *utf8Assembler) push(p []byte) string {
	a.pending = append(a.pending, p...)

	keep := incompleteTailLen(a.pending)
	emit := len(a.pending) - keep
	if emit == 0 {
		return ""
	}

	out := string(a.pending[:emit])
	a.pending = append(a.pending[:0], a.pending[emit:]...)
	return out
}

// flush drains whatever is still pending. ok is false when the stream
// ended in the middle of a multi-byte sequence.
func (a *utf8Assembler) flush() (out string, ok bool) {
	if len(a.pending) == 0 {
		return "", true
	}

	out = string(a.pending)
	a.pending = nil
	return out, false
}

// incompleteTailLen reports how many trailing bytes belong to a rune that
// has not fully arrived yet. Malformed sequences can never complete, so
// they are not held back; they pass through verbatim rather than stall
// the stream.
func incompleteTailLen(b []byte) int {
	n := len(b)
	for i := 1; i <= utf8.UTFMax && i <= n; i++ {
		c := b[n-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[n-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
