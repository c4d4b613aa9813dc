package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/go-i2p/connpool/lib/errors"
)

func TestErrorString(t *testing.T) {
	assert.EqualError(t, ErrInternal(""), "rpc error -32603: internal error")
	assert.EqualError(t, ErrMethodNotFound("pool.stats"), "rpc error -32601: method not found: pool.stats")
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err  *Error
		code int
		data any
	}{
		{ErrMethodNotFound("nope"), ErrCodeMethodNotFound, "nope"},
		{ErrInvalidParams("missing field"), ErrCodeInvalidParams, "missing field"},
		{ErrInternal("crash"), ErrCodeInternal, "crash"},
		{ErrInternal(""), ErrCodeInternal, nil},
		{ErrAuthRequired(), ErrCodeAuthRequired, nil},
		{ErrPermissionDenied("invalid token"), ErrCodePermissionDenied, "invalid token"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code, tt.err.Message)
		assert.Equal(t, tt.data, tt.err.Data, tt.err.Message)
	}
}

func TestValidateRequest(t *testing.T) {
	valid := []Request{
		{JSONRPC: "2.0", Method: "status"},
		{JSONRPC: "2.0", Method: "pool.stats", ID: json.RawMessage(`1`)},
	}
	for _, req := range valid {
		assert.NoError(t, ValidateRequest(&req), req.Method)
	}

	invalid := []Request{
		{Method: "status"},
		{JSONRPC: "1.0", Method: "status"},
		{JSONRPC: "2.0"},
		{JSONRPC: "2.0", Method: "pool stats"},
	}
	for _, req := range invalid {
		assert.Error(t, ValidateRequest(&req), "%+v", req)
	}
}

func TestNewSuccessResponse(t *testing.T) {
	resp, err := NewSuccessResponse(json.RawMessage(`1`), map[string]string{"status": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Result))

	resp, err = NewSuccessResponse(json.RawMessage(`2`), json.RawMessage(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(resp.Result), "raw results are not re-encoded")

	resp, err = NewSuccessResponse(json.RawMessage(`3`), nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Result)

	_, err = NewSuccessResponse(nil, make(chan int))
	assert.Error(t, err)
}

func TestErrorResponseWireFormat(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse(json.RawMessage(`"req-1"`), ErrMethodNotFound("unknown.method")))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonrpc": "2.0",
		"error": {"code": -32601, "message": "method not found", "data": "unknown.method"},
		"id": "req-1"
	}`, string(data))

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeMethodNotFound, decoded.Error.Code)
	assert.Nil(t, decoded.Result)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"rpc error kept", ErrInvalidParams("x"), ErrCodeInvalidParams},
		{"wrapped rpc error", fmt.Errorf("call: %w", ErrAuthRequired()), ErrCodeAuthRequired},
		{"coded error", apperrors.New(apperrors.CodeNotFound, "no such endpoint"), apperrors.CodeNotFound},
		{"acquire timeout", fmt.Errorf("acquire: %w", apperrors.ErrPoolAcquireTimeout), apperrors.CodeTimeout},
		{"pool closed", apperrors.ErrPoolClosed, apperrors.CodeClosed},
		{"circuit open", apperrors.ErrCircuitOpen, apperrors.CodeUnavailable},
		{"rate limited", apperrors.ErrRateLimited, ErrCodeRateLimited},
		{"plain error hidden", errors.New("secret path /etc/x"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, FromError(tt.err).Code)
		})
	}

	hidden := FromError(errors.New("secret"))
	assert.Nil(t, hidden.Data)
	assert.Equal(t, "internal error", hidden.Message)

	wrapped := FromError(apperrors.Wrap(apperrors.CodeConnection, "endpoint unreachable", errors.New("dial 10.0.0.7:22: refused")))
	assert.Equal(t, "endpoint unreachable", wrapped.Message, "the cause stays server-side")
}
