package command

import "errors"

var (
	// ErrDeviceUnreachable is returned without any network call when the
	// gate blocks a command.
	ErrDeviceUnreachable = errors.New("command: device unreachable")

	// ErrInvalidPin is returned for negative GPIO pin numbers.
	ErrInvalidPin = errors.New("command: invalid gpio pin")
)
