package utils

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@]+)(@)`)

// MaskDSN hides the password portion of a connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskSecret keeps the first four characters of a credential for log correlation.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:4] + "***"
}
