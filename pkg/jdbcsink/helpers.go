package jdbcsink

import (
	"database/sql/driver"
	"errors"
	"io"
	"strings"
)

// isValidIdentifier reports whether name is safe to use as a table or
// column identifier: alphanumeric + underscore, not starting with a
// digit, max 63 chars.
func isValidIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// isRetryableError reports whether an error looks like a transient
// connection failure worth retrying. Configuration, schema and
// count-mismatch errors never match.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"broken pipe",
		"bad connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
