package pool

import apperrors "github.com/go-i2p/connpool/lib/errors"

// Errors returned by the Manager. Each wraps a shared sentinel from
// lib/errors so callers can branch on the category with errors.Is.
var (
	// ErrAcquireTimeout is returned when a queued acquisition outlives AcquireTimeout.
	ErrAcquireTimeout = apperrors.ErrPoolAcquireTimeout
	// ErrCreateTimeout is returned when the factory does not answer within CreateTimeout.
	ErrCreateTimeout = apperrors.ErrPoolCreateTimeout
	// ErrNotPooled is returned by Release and Discard for connections the pool does not hold.
	ErrNotPooled = apperrors.ErrPoolNotPooled
	// ErrPoolCleared is delivered to pending acquisitions rejected by Clear.
	ErrPoolCleared = apperrors.ErrPoolCleared
	// ErrPoolClosed is returned once Close has been called.
	ErrPoolClosed = apperrors.ErrPoolClosed
	// ErrProbeTimeout is recorded when a liveness probe outlives ValidationTimeout.
	ErrProbeTimeout = apperrors.ErrPoolProbeTimeout
)
