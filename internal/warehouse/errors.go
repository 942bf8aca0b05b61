package warehouse

import "errors"

var (
	// ErrConnectionFailed is returned when opening a new session against the
	// warehouse endpoint fails. The pool slot reserved for the session is
	// rolled back, so a later Acquire may try again.
	ErrConnectionFailed = errors.New("warehouse: connection failed")

	// ErrPoolExhausted is returned when Acquire waits past the configured
	// acquire timeout without a session being freed.
	ErrPoolExhausted = errors.New("warehouse: session pool exhausted")

	// ErrQueryFailed wraps statement execution errors. A failed query does
	// not imply the session is dead; the session is still returned through
	// the normal validate-on-release path.
	ErrQueryFailed = errors.New("warehouse: query failed")
)
