package client

import "errors"

var (
	// ErrDaemonNotRunning is returned when nothing listens on the daemon address
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")
)
