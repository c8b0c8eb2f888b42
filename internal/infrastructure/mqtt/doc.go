// Package mqtt provides the broker session used by gpioremote.
//
// This package manages:
//   - One MQTT over secure WebSocket session per credential set
//   - Lifecycle events (connecting, connected, reconnecting, lost, error, closed)
//   - A single dispatch point for inbound publishes with multiple listeners
//   - Subscription tracking and replay on every connect
//   - Publish with the connected check held across the send
//   - Last Will and Testament announcing the device status topic offline
//
// # Architecture
//
// A browser or CLI client and the ESP32 device talk through a hosted broker:
//
//	gpioremote ↔ wss://{deployment}.<broker-host>:8084/mqtt ↔ ESP32
//
// # Security Considerations
//
//   - wss:// and ssl:// endpoints use TLS 1.2 or newer
//   - Credentials travel in the MQTT CONNECT packet, protected only by TLS
//
// # Usage
//
//	session, err := mqtt.New(creds, cfg.Session, cfg.Device)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	session.OnEvent(func(ev mqtt.Event) { log.Println(ev.Kind) })
//	session.OnMessage(func(topic string, payload []byte) { log.Println(topic) })
//	session.Subscribe(mqtt.Topics{Device: "esp32_02"}.Status())
//
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//	err = session.Publish(ctx, mqtt.Topics{Device: "esp32_02"}.GPIOSet(2), []byte("ON"), 1)
package mqtt
