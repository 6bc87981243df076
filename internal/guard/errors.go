package guard

import "errors"

var (
	// ErrRejected means the authority answered but refused the host.
	ErrRejected = errors.New("verification rejected by authority")
	// ErrTransport covers network, TLS, timeout and response parsing failures.
	ErrTransport = errors.New("verification transport error")
	// ErrProbeUnavailable marks a probe that produced no address.
	ErrProbeUnavailable = errors.New("address probe unavailable")

	ErrAlreadyStarted = errors.New("verification already started")
	ErrNotStarted     = errors.New("verification not started")
	ErrInvalidConfig  = errors.New("invalid guard configuration")
)
