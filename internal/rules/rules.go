package rules

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeAnswer lowercases and trims a security-question answer. The same
// form is used at enrollment and at challenge time.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// NormalizeCipherAnswer trims a cipher answer and keeps its casing.
func NormalizeCipherAnswer(answer string) string {
	return strings.TrimSpace(answer)
}

func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// ValidEmail reports whether email has a local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailShape.MatchString(email)
}

// PasswordLongEnough counts runes, not bytes.
func PasswordLongEnough(password string, min int) bool {
	return utf8.RuneCountInString(password) >= min
}

func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// DistinctQuestions reports whether no question appears twice. Blank entries
// are compared like any other value.
func DistinctQuestions(questions ...string) bool {
	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if _, ok := seen[q]; ok {
			return false
		}
		seen[q] = struct{}{}
	}
	return true
}

func IsDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// DigitsOnly strips every non-digit from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
