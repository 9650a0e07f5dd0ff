package cipher

import "strings"

const alphabetSize = 26

// Encode shifts every ASCII letter in text forward by shift positions within its
// own case, wrapping at the alphabet boundary. Other characters pass through.
// Negative shifts and shifts beyond 25 are reduced modulo 26.
func Encode(text string, shift int) string {
	s := normalizeShift(shift)
	if s == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteByte('A' + (c-'A'+byte(s))%alphabetSize)
		case c >= 'a' && c <= 'z':
			b.WriteByte('a' + (c-'a'+byte(s))%alphabetSize)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Decode reverses Encode for the same shift.
func Decode(text string, shift int) string {
	return Encode(text, alphabetSize-normalizeShift(shift))
}

func normalizeShift(shift int) int {
	return ((shift % alphabetSize) + alphabetSize) % alphabetSize
}
