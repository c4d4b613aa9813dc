// Package errors holds the error vocabulary shared by connpool packages.
//
// Packages return errors that wrap one of the category sentinels below, so
// callers branch with errors.Is and the RPC layer can turn any of them into
// a stable JSON-RPC code with FromSentinel.
package errors

import (
	"errors"
	"fmt"
)

// JSON-RPC 2.0 reserves -32768..-32000. The standard codes come first, then
// the application range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeNotFound    = -32003
	CodeRateLimited = -32004
	CodeTimeout     = -32005
	CodeUnavailable = -32007
	CodeConnection  = -32009
	CodeState       = -32010
	CodeClosed      = -32011
)

// Categories.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrTimeout       = errors.New("timed out")
	ErrUnavailable   = errors.New("unavailable")
	ErrRateLimited   = errors.New("rate limited")
	ErrClosed        = errors.New("closed")
	ErrInvalidState  = errors.New("invalid state")
	ErrConnection    = errors.New("connection failed")
	ErrConfiguration = errors.New("bad configuration")
	ErrCircuitOpen   = errors.New("circuit open")
)

// Pool.
var (
	ErrPoolAcquireTimeout = fmt.Errorf("pool: acquire %w", ErrTimeout)
	ErrPoolCreateTimeout  = fmt.Errorf("pool: create %w", ErrTimeout)
	ErrPoolProbeTimeout   = fmt.Errorf("pool: probe %w", ErrTimeout)
	ErrPoolNotPooled      = fmt.Errorf("pool: connection %w", ErrNotFound)
	ErrPoolCleared        = fmt.Errorf("pool: cleared: %w", ErrInvalidState)
	ErrPoolClosed         = fmt.Errorf("pool: %w", ErrClosed)
)

// Transport.
var (
	ErrTransportUnsupportedScheme = fmt.Errorf("transport: unsupported scheme: %w", ErrInvalidInput)
	ErrTransportInvalidEndpoint   = fmt.Errorf("transport: bad endpoint: %w", ErrInvalidInput)
)

// RPC.
var ErrRPCNoEndpoints = fmt.Errorf("rpc: no endpoints: %w", ErrUnavailable)

// codes maps categories to codes. Order matters: the first match wins, so
// narrower categories go before the ones they might also wrap.
var codes = []struct {
	category error
	code     int
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
}

// CodeOf returns the code for err's category, or CodeInternal when err
// wraps none of them. A coded *Error keeps its own code.
func CodeOf(err error) int {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.category) {
			return c.code
		}
	}
	return CodeInternal
}

// Error pairs a code and a message that is safe to send to a client with
// the underlying cause, which is not.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// SafeMessage is the client-facing part of e.
func (e *Error) SafeMessage() string { return e.Message }

// New returns a coded error without a cause.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and safe message to cause.
func Wrap(code int, message string, cause error) *Error {
	if cause != nil {
		log.WithField("code", code).WithError(cause).Debug("wrapping error")
	}
	return &Error{Code: code, Message: message, Err: cause}
}

// FromSentinel codes err by category and uses its text as the message.
// Only use it for errors whose text is fit for clients; anything coded
// CodeInternal should be replaced with a generic message instead.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeOf(err), Message: err.Error(), Err: err}
}

// IsTimeout reports whether err is in the timeout category.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsRateLimited reports whether err is in the rate-limited category.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsClosed reports whether err is in the closed category.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }
