// Package command sends operator commands to the device.
//
// Every dispatch is gated on the presented connection status: a command is
// published only while the session is Connected and the device is
// Reachable. A successful publish produces exactly one audit record; a
// rejected or failed one produces none.
package command
