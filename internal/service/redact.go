package service

import (
	"strings"
	"unicode/utf8"
)

// RedactEmail masks the local part of an address for logs: "alice@example.com" becomes "a***@example.com".
func RedactEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + "***" + email[at:]
}
