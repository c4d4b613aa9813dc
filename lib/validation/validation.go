// Package validation checks endpoints, RPC method names and configuration
// values. Every check returns nil or a *FieldError naming the offending field;
// the message is safe to show to a remote caller.
package validation

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Failure categories, matched with errors.Is.
var (
	ErrRequired        = errors.New("required")
	ErrTooLong         = errors.New("too long")
	ErrInvalidFormat   = errors.New("malformed")
	ErrOutOfRange      = errors.New("out of range")
	ErrInvalidDuration = errors.New("bad duration")
)

const (
	// MaxEndpointLength bounds endpoint strings, scheme included.
	MaxEndpointLength = 1024
	// MaxMethodLength bounds RPC method names.
	MaxMethodLength = 128
)

var (
	schemePattern = regexp.MustCompile(`^[a-z][a-z0-9+.-]*$`)
	methodPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.]*$`)
)

// FieldError describes one rejected value.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *FieldError) Unwrap() error { return e.Err }

// Invalidf builds a *FieldError in category err.
func Invalidf(field string, err error, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Number covers the values configuration limits are expressed in,
// time.Duration included.
type Number interface {
	~int | ~int32 | ~int64 | ~float64
}

// Positive rejects v <= 0.
func Positive[T Number](field string, v T) error {
	if v > 0 {
		return nil
	}
	return Invalidf(field, ErrOutOfRange, "must be greater than zero, got %v", v)
}

// NonNegative rejects v < 0. Zero usually means disabled.
func NonNegative[T Number](field string, v T) error {
	if v >= 0 {
		return nil
	}
	return Invalidf(field, ErrOutOfRange, "must not be negative, got %v", v)
}

// Between rejects v outside [lo, hi].
func Between[T Number](field string, v, lo, hi T) error {
	if v >= lo && v <= hi {
		return nil
	}
	return Invalidf(field, ErrOutOfRange, "must be between %v and %v, got %v", lo, hi, v)
}

// Required rejects blank strings.
func Required(field, value string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return Invalidf(field, ErrRequired, "is required")
}

// MaxLength rejects strings longer than max runes.
func MaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) <= max {
		return nil
	}
	return Invalidf(field, ErrTooLong, "longer than %d characters", max)
}

// ParseDuration reads a Go duration ("1m30s") or a bare number of seconds.
// The empty string parses as zero.
func ParseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(value); err != nil {
		return 0, Invalidf(field, ErrInvalidDuration, "cannot parse %q as a duration", value)
	}
	if err := NonNegative(field, d); err != nil {
		return 0, err
	}
	return d, nil
}

// HostPort requires a host:port pair. The host may be empty (":80").
func HostPort(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		return Invalidf(field, ErrInvalidFormat, "want host:port, got %q", value)
	}
	return nil
}

// Endpoint accepts a bare host:port or scheme://address with a non-empty
// address. The scheme itself is not checked against any registry.
func Endpoint(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if err := MaxLength(field, value, MaxEndpointLength); err != nil {
		return err
	}

	scheme, rest, ok := strings.Cut(value, "://")
	switch {
	case !ok:
		return HostPort(field, value)
	case !schemePattern.MatchString(scheme):
		return Invalidf(field, ErrInvalidFormat, "bad scheme %q", scheme)
	case rest == "":
		return Invalidf(field, ErrInvalidFormat, "no address after %s://", scheme)
	}
	return nil
}

// Method checks an RPC method name: a letter, then letters, digits, '.' or '_'.
func Method(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if err := MaxLength(field, value, MaxMethodLength); err != nil {
		return err
	}
	if !methodPattern.MatchString(value) {
		return Invalidf(field, ErrInvalidFormat, "bad method name %q", value)
	}
	return nil
}
