package logger

import (
	"regexp"
)

// sensitiveDataPatterns match credentials that must not reach log output.
var sensitiveDataPatterns = []*regexp.Regexp{
	// user:password@ in DSNs and URLs
	regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://[^:@/\s]+:)([^@/\s]+)(@)`),
	// go-sql-driver style user:password@tcp(...)
	regexp.MustCompile(`(^|\s)([^:@/\s]+:)([^@/\s]+)(@tcp\()`),
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	// key=value secrets
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|passw(or)?d|dsn)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
}

// RedactSensitiveData replaces credentials in input with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	input = sensitiveDataPatterns[0].ReplaceAllString(input, "$1[REDACTED]$3")
	input = sensitiveDataPatterns[1].ReplaceAllString(input, "$1$2[REDACTED]$4")
	input = sensitiveDataPatterns[2].ReplaceAllString(input, "$1[REDACTED]")
	input = sensitiveDataPatterns[3].ReplaceAllString(input, "$1[REDACTED]")

	return input
}
