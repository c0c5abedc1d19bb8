package simulator

import "errors"

// Simulator errors.
var (
	ErrStopRejected   = errors.New("simulator: stop rejected")
	ErrUnknownSession = errors.New("simulator: unknown session")
	ErrSessionEnded   = errors.New("simulator: session already ended")
)
