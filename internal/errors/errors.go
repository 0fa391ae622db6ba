package errors

import "errors"

// Tile fetch failures. Each is fatal to the job it happens in.
var (
	ErrNetwork = errors.New("network error")
	ErrDecode  = errors.New("decode error")
	ErrWrite   = errors.New("write error")
)

var (
	ErrNotRunning     = errors.New("no download job running")
	ErrInvalidRequest = errors.New("invalid download request")
	ErrJobNotFound    = errors.New("job not found")
	ErrShuttingDown   = errors.New("service is shutting down")
)
