// Package rpc speaks newline-delimited JSON-RPC 2.0 over stream
// connections. It has a small Server and a PooledClient that borrows its
// connections from a pool.Manager.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/go-i2p/connpool/lib/errors"
	"github.com/go-i2p/connpool/lib/validation"
)

// ProtocolVersion is reported by the status method. It changes when the
// built-in methods change shape.
const ProtocolVersion = "1.0"

// Wire error codes. Most come from lib/errors so that a sentinel keeps its
// code on the way to the client; auth has its own pair.
const (
	ErrCodeParse            = apperrors.CodeParseError
	ErrCodeInvalidRequest   = apperrors.CodeInvalidRequest
	ErrCodeMethodNotFound   = apperrors.CodeMethodNotFound
	ErrCodeInvalidParams    = apperrors.CodeInvalidParams
	ErrCodeInternal         = apperrors.CodeInternal
	ErrCodeAuthRequired     = -32001
	ErrCodePermissionDenied = -32002
	ErrCodeRateLimited      = apperrors.CodeRateLimited
)

// Request is one line sent by a client. Params and ID are kept raw: the
// handler decodes Params, and ID is echoed back untouched.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response carries either Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Error is a JSON-RPC error object. It doubles as a Go error so handlers
// can return one directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data == nil {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s: %v", e.Code, e.Message, e.Data)
}

func NewError(code int, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// FromError turns a handler error into a wire error. *Error passes through,
// a coded *apperrors.Error keeps its code and safe message, and a categorized
// sentinel keeps its code and text. Anything else becomes a bare internal
// error so that no detail reaches the client.
func FromError(err error) *Error {
	var wire *Error
	if errors.As(err, &wire) {
		return wire
	}
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		return NewError(coded.Code, coded.SafeMessage(), nil)
	}
	if code := apperrors.CodeOf(err); code != apperrors.CodeInternal {
		return NewError(code, err.Error(), nil)
	}
	return ErrInternal("")
}

func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: "2.0", Error: err, ID: id}
}

// NewSuccessResponse marshals result. A json.RawMessage is used verbatim
// and nil leaves Result empty.
func NewSuccessResponse(id json.RawMessage, result any) (*Response, error) {
	resp := &Response{JSONRPC: "2.0", ID: id}
	switch r := result.(type) {
	case nil:
	case json.RawMessage:
		resp.Result = r
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = data
	}
	return resp, nil
}

// ValidateRequest checks the version tag and the method name.
func ValidateRequest(req *Request) error {
	if req.JSONRPC != "2.0" {
		return fmt.Errorf("unsupported jsonrpc version %q", req.JSONRPC)
	}
	return validation.Method("method", req.Method)
}

func ErrMethodNotFound(method string) *Error {
	return NewError(ErrCodeMethodNotFound, "method not found", method)
}

func ErrInvalidParams(details string) *Error {
	return NewError(ErrCodeInvalidParams, "invalid params", details)
}

// ErrInternal omits data when details is empty.
func ErrInternal(details string) *Error {
	var data any
	if details != "" {
		data = details
	}
	return NewError(ErrCodeInternal, "internal error", data)
}

func ErrAuthRequired() *Error {
	return NewError(ErrCodeAuthRequired, "authentication required", nil)
}

func ErrPermissionDenied(details string) *Error {
	return NewError(ErrCodePermissionDenied, "permission denied", details)
}

// StatusResult is the result of the built-in status method.
type StatusResult struct {
	Version           string `json:"version"`
	Protocol          string `json:"protocol"`
	Uptime            string `json:"uptime"`
	ActiveConnections int    `json:"active_connections"`
	MaxConnections    int    `json:"max_connections"`
}
