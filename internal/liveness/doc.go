// Package liveness tracks whether the remote device is reachable.
//
// Two inputs feed one pure reducer: status-topic messages (online,
// heartbeat, offline) and a periodic tick. A tick downgrades a device that
// has gone silent for longer than the timeout, so a crash or partition that
// never sends "offline" is still detected. An explicit "offline" takes effect
// immediately.
//
// Reduce has no clock and no goroutines; Monitor wraps it with a mutex, an
// injected Clock, a ticker loop and change listeners.
package liveness
