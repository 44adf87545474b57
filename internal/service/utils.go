package service

import (
	"strings"
	"unicode/utf8"
)

// sanitizeUTF8 strips broken byte sequences from model output. Postgres
// rejects invalid UTF-8 in text columns, and truncated streaming responses
// occasionally split a multibyte character.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
