package helpers

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID returns a fresh random UUID string. Transactions and
// compiled view plans use these as identifiers.
func GenerateUUID() string {
	return uuid.New().String()
}

// StripQuotes trims whitespace and removes one matching pair of
// surrounding single or double quotes, if present.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
