package golf

import (
	"crypto/rand"
	"strings"
)

// CodeLength is the length of a join code.
const CodeLength = 6

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateGameCode returns a random base-36 join code. Uniqueness is left to
// the backend's unique constraint on games.code.
func GenerateGameCode() string {
	b := make([]byte, CodeLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}

// NormalizeCode trims and uppercases user input.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidCode reports whether s is exactly CodeLength chars of [0-9A-Z].
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
