// Package remote assembles a complete GPIO remote client.
//
// A Client owns one MQTT session and everything driven by it: the device
// liveness monitor, the connection state machine and its command gate, the
// command dispatcher, rule management and the telemetry views. Inbound
// messages enter through a single dispatch point and fan out to each
// consumer in a fixed order, so every consumer sees the same sequence.
//
// Usage:
//
//	client, err := remote.Open(ctx, creds, remote.FromConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if _, err := client.WaitAllowed(ctx); err != nil {
//	    return err
//	}
//	ack, err := client.SetGPIO(ctx, 2, true)
package remote
