package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedErrorsKeepCategory(t *testing.T) {
	tests := []struct {
		err      error
		category error
		text     string
		code     int
	}{
		{ErrPoolAcquireTimeout, ErrTimeout, "pool: acquire timed out", CodeTimeout},
		{ErrPoolCreateTimeout, ErrTimeout, "pool: create timed out", CodeTimeout},
		{ErrPoolProbeTimeout, ErrTimeout, "pool: probe timed out", CodeTimeout},
		{ErrPoolNotPooled, ErrNotFound, "pool: connection not found", CodeNotFound},
		{ErrPoolCleared, ErrInvalidState, "pool: cleared: invalid state", CodeState},
		{ErrPoolClosed, ErrClosed, "pool: closed", CodeClosed},
		{ErrTransportUnsupportedScheme, ErrInvalidInput, "transport: unsupported scheme: invalid input", CodeInvalidParams},
		{ErrTransportInvalidEndpoint, ErrInvalidInput, "transport: bad endpoint: invalid input", CodeInvalidParams},
		{ErrRPCNoEndpoints, ErrUnavailable, "rpc: no endpoints: unavailable", CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.category)
			assert.EqualError(t, tt.err, tt.text)
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{ErrNotFound, CodeNotFound},
		{ErrRateLimited, CodeRateLimited},
		{ErrTimeout, CodeTimeout},
		{ErrCircuitOpen, CodeUnavailable},
		{ErrUnavailable, CodeUnavailable},
		{ErrConfiguration, CodeInvalidParams},
		{ErrInvalidInput, CodeInvalidParams},
		{ErrInvalidState, CodeState},
		{ErrClosed, CodeClosed},
		{ErrConnection, CodeConnection},
		{errors.New("disk on fire"), CodeInternal},
		{nil, CodeInternal},
		{fmt.Errorf("dial 10.0.0.1:80: %w", ErrCircuitOpen), CodeUnavailable},
		{fmt.Errorf("outer: %w", New(CodeMethodNotFound, "no such method")), CodeMethodNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, CodeOf(tt.err), "CodeOf(%v)", tt.err)
	}
}

func TestCodeOfFirstMatchWins(t *testing.T) {
	// Timed out while rate limited: the rate limit is the more useful code.
	err := fmt.Errorf("%w: %w", ErrRateLimited, ErrTimeout)
	assert.Equal(t, CodeRateLimited, CodeOf(err))
}

func TestError(t *testing.T) {
	e := New(CodeInvalidParams, "bad params")
	assert.EqualError(t, e, "bad params")
	assert.Nil(t, e.Unwrap())
	assert.Equal(t, "bad params", e.SafeMessage())

	cause := errors.New("json: unexpected EOF at offset 17")
	w := Wrap(CodeParseError, "parse error", cause)
	assert.EqualError(t, w, "parse error: json: unexpected EOF at offset 17")
	assert.Equal(t, "parse error", w.SafeMessage(), "cause must not leak")
	assert.ErrorIs(t, w, cause)

	var target *Error
	require.True(t, errors.As(fmt.Errorf("ctx: %w", w), &target))
	assert.Equal(t, CodeParseError, target.Code)

	assert.Nil(t, Wrap(CodeInternal, "x", nil).Err)
}

func TestFromSentinel(t *testing.T) {
	assert.Nil(t, FromSentinel(nil))

	e := FromSentinel(ErrPoolAcquireTimeout)
	assert.Equal(t, CodeTimeout, e.Code)
	assert.Equal(t, "pool: acquire timed out", e.Message)
	assert.ErrorIs(t, e, ErrTimeout)

	e = FromSentinel(errors.New("unexpected"))
	assert.Equal(t, CodeInternal, e.Code)
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsTimeout(ErrPoolCreateTimeout))
	assert.False(t, IsTimeout(ErrPoolClosed))
	assert.True(t, IsRateLimited(fmt.Errorf("endpoint a:1: %w", ErrRateLimited)))
	assert.False(t, IsRateLimited(nil))
	assert.True(t, IsClosed(ErrPoolClosed))
	assert.False(t, IsClosed(ErrPoolCleared))
}
