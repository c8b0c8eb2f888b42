// Package connection composes session lifecycle and device liveness into the
// presented status of a client and the gate that decides whether commands may
// be sent.
//
// Transition is the pure state table:
//
//	Connecting   --connected-->        Connected
//	Connected    --reconnecting-->     Reconnecting   (liveness forced Unknown)
//	Connected    --connection lost-->  Reconnecting   (broker will retry)
//	Reconnecting --connected-->        Connected      (subscriptions replayed)
//	any          --error-->            Errored
//	any          --closed-->           Disconnected
//	any          --terminal loss-->    Disconnected
//
// Errored and Disconnected are terminal for a session handle: recovery means
// opening a new session.
package connection
