package remote

import "errors"

var (
	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("remote: client closed")

	// ErrTerminal is returned by WaitAllowed when the connection reaches a
	// state it cannot leave on its own.
	ErrTerminal = errors.New("remote: connection ended")
)
