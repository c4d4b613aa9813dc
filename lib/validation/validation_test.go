package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// check runs fn and asserts it fails with want, or succeeds when want is nil.
func check(t *testing.T, err, want error) {
	t.Helper()
	if want == nil {
		assert.NoError(t, err)
		return
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, want)
	var fe *FieldError
	assert.True(t, errors.As(err, &fe), "want *FieldError, got %T", err)
}

func TestRequired(t *testing.T) {
	for value, want := range map[string]error{
		"pool":   nil,
		" pool ": nil,
		"":       ErrRequired,
		"  \t\n": ErrRequired,
	} {
		check(t, Required("name", value), want)
	}
}

func TestMaxLength(t *testing.T) {
	check(t, MaxLength("name", "abcd", 4), nil)
	check(t, MaxLength("name", "abcde", 4), ErrTooLong)
	// Runes, not bytes.
	check(t, MaxLength("name", "日本語", 3), nil)
	check(t, MaxLength("name", "日本語テ", 3), ErrTooLong)
}

func TestNumbers(t *testing.T) {
	check(t, Positive("max", 1), nil)
	check(t, Positive("max", 0), ErrOutOfRange)
	check(t, Positive("rate", 0.5), nil)
	check(t, Positive("rate", -0.5), ErrOutOfRange)
	check(t, Positive("timeout", time.Second), nil)
	check(t, Positive("timeout", time.Duration(0)), ErrOutOfRange)

	check(t, NonNegative("min", 0), nil)
	check(t, NonNegative("min", -1), ErrOutOfRange)
	check(t, NonNegative("interval", -time.Millisecond), ErrOutOfRange)

	check(t, Between("min", 0, 0, 10), nil)
	check(t, Between("min", 10, 0, 10), nil)
	check(t, Between("min", 11, 0, 10), ErrOutOfRange)
	check(t, Between("min", -1, 0, 10), ErrOutOfRange)
}

func TestNumberMessages(t *testing.T) {
	err := Between("pool.min_connections", 12, 0, 10)
	assert.EqualError(t, err, "pool.min_connections: must be between 0 and 10, got 12")

	err = Positive("pool.idle_timeout", time.Duration(0))
	assert.EqualError(t, err, "pool.idle_timeout: must be greater than zero, got 0s")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  error
	}{
		{"", 0, nil},
		{"30s", 30 * time.Second, nil},
		{"1m30s", 90 * time.Second, nil},
		{"250ms", 250 * time.Millisecond, nil},
		{"45", 45 * time.Second, nil},
		{" 2h ", 2 * time.Hour, nil},
		{"0", 0, nil},
		{"-5s", 0, ErrOutOfRange},
		{"-5", 0, ErrOutOfRange},
		{"soon", 0, ErrInvalidDuration},
		{"5 minutes", 0, ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration("timeout", tt.in)
			check(t, err, tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHostPort(t *testing.T) {
	check(t, HostPort("listen", "127.0.0.1:9464"), nil)
	check(t, HostPort("listen", ":9464"), nil)
	check(t, HostPort("listen", "[::1]:80"), nil)
	check(t, HostPort("listen", ""), ErrRequired)
	check(t, HostPort("listen", "localhost"), ErrInvalidFormat)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		err      error
	}{
		{"10.0.0.1:6379", nil},
		{"tcp://db:5432", nil},
		{"unix:///run/app.sock", nil},
		{"i2p://example.i2p", nil},
		{"redis+tls://cache:6380", nil},
		{"", ErrRequired},
		{"no-port", ErrInvalidFormat},
		{"Tcp://db:5432", ErrInvalidFormat},
		{"1tcp://db:5432", ErrInvalidFormat},
		{"kafka://", ErrInvalidFormat},
		{"tcp://" + strings.Repeat("a", MaxEndpointLength), ErrTooLong},
	}
	for _, tt := range tests {
		name := tt.endpoint
		if len(name) > 40 {
			name = name[:40]
		}
		t.Run(name, func(t *testing.T) {
			check(t, Endpoint("endpoint", tt.endpoint), tt.err)
		})
	}
}

func TestMethod(t *testing.T) {
	check(t, Method("method", "ping"), nil)
	check(t, Method("method", "pool.stats"), nil)
	check(t, Method("method", "get_info2"), nil)
	check(t, Method("method", ""), ErrRequired)
	check(t, Method("method", "2fast"), ErrInvalidFormat)
	check(t, Method("method", "rm -rf"), ErrInvalidFormat)
	check(t, Method("method", "a"+strings.Repeat("b", MaxMethodLength)), ErrTooLong)
}

func TestFieldError(t *testing.T) {
	err := Invalidf("pool.strategy", ErrInvalidFormat, "unknown strategy %q", "fastest")
	assert.EqualError(t, err, `pool.strategy: unknown strategy "fastest"`)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	err = Invalidf("", ErrRequired, "factory is required")
	assert.EqualError(t, err, "factory is required")
}
