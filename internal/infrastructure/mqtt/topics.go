package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Device payload vocabulary.
const (
	StatusOnline    = "online"
	StatusHeartbeat = "heartbeat"
	StatusOffline   = "offline"

	PinOn  = "ON"
	PinOff = "OFF"
)

// Topics provides builders for one device's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Device: "esp32_02"}
//	setTopic := topics.GPIOSet(2)
//	// Returns: "esp32_02/gpio/2/set"
type Topics struct {
	Device string
}

// =============================================================================
// Device Topics
// =============================================================================

// Status returns the device status topic (online, heartbeat, offline).
//
// Example: esp32_02/status
func (t Topics) Status() string {
	return t.Device + "/status"
}

// GPIOSet returns the command topic for a pin.
//
// Example: esp32_02/gpio/2/set
func (t Topics) GPIOSet(pin int) string {
	return fmt.Sprintf("%s/gpio/%d/set", t.Device, pin)
}

// GPIOState returns the state report topic for a pin.
//
// Example: esp32_02/gpio/2/state
func (t Topics) GPIOState(pin int) string {
	return fmt.Sprintf("%s/gpio/%d/state", t.Device, pin)
}

// Sensor returns the topic a sensor publishes readings on.
//
// Example: esp32_02/sensor/dht11
func (t Topics) Sensor(name string) string {
	return fmt.Sprintf("%s/sensor/%s", t.Device, name)
}

// =============================================================================
// Wildcard Subscriptions
// =============================================================================

// AllGPIOStates returns a wildcard for every pin's state reports.
//
// Example: esp32_02/gpio/+/state
func (t Topics) AllGPIOStates() string {
	return t.Device + "/gpio/+/state"
}

// AllSensors returns a wildcard for every sensor reading.
//
// Example: esp32_02/sensor/+
func (t Topics) AllSensors() string {
	return t.Device + "/sensor/+"
}

// All returns a wildcard for every topic of the device.
//
// Example: esp32_02/#
func (t Topics) All() string {
	return t.Device + "/#"
}

// =============================================================================
// Parsing
// =============================================================================

// ParseGPIOState extracts the pin from a "<device>/gpio/<pin>/state" topic.
func ParseGPIOState(topic string) (device string, pin int, ok bool) {
	return parseGPIO(topic, "state")
}

// ParseGPIOSet extracts the pin from a "<device>/gpio/<pin>/set" topic.
func ParseGPIOSet(topic string) (device string, pin int, ok bool) {
	return parseGPIO(topic, "set")
}

func parseGPIO(topic, suffix string) (string, int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[1] != "gpio" || parts[3] != suffix || parts[0] == "" {
		return "", 0, false
	}
	pin, err := strconv.Atoi(parts[2])
	if err != nil || pin < 0 {
		return "", 0, false
	}
	return parts[0], pin, true
}

// DeviceOf returns the first topic segment, which names the publishing device.
func DeviceOf(topic string) string {
	device, _, _ := strings.Cut(topic, "/")
	return device
}

// TopicMatches reports whether topic is matched by the subscription filter,
// honouring the single-level (+) and multi-level (#) wildcards.
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
