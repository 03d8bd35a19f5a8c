package domain

import (
	"math/rand/v2"
	"strings"
)

const (
	// CodeLength is the fixed length of a quiz code.
	CodeLength = 6
	// CodeAlphabet lists the characters a quiz code is drawn from.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// MaxCodeAttempts bounds collision retries when publishing a quiz.
	MaxCodeAttempts = 32
)

// CodeGenerator produces candidate quiz codes. Stores check uniqueness.
type CodeGenerator func() string

// RandomCode draws CodeLength characters from CodeAlphabet.
func RandomCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[rand.IntN(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode trims and uppercases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the published format.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(CodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
