// Package validation holds the error type shared by every clinic service
// plus the civil-date helpers the rules are expressed in.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the wire and form format of civil dates.
const DateLayout = "2006-01-02"

// Error is a user-facing validation failure. The operation that produced
// it made no state change.
type Error struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err as a validation failure of field while keeping it
// reachable through errors.Is.
func Wrap(field string, err error) *Error {
	return &Error{Field: field, Message: err.Error(), Err: err}
}

// Errorf builds a validation error for field.
func Errorf(field, format string, args ...interface{}) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Required reports a missing mandatory field.
func Required(field string) *Error {
	return &Error{Field: field, Message: field + " is required"}
}

// IsValidation reports whether err is or wraps a validation failure.
func IsValidation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Clean strips NUL and control characters other than tab and newlines,
// then trims surrounding whitespace. Free-text fields go through it before
// they are checked or stored.
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}

// Blank reports whether s is empty after trimming.
func Blank(s string) bool { return strings.TrimSpace(s) == "" }

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}
