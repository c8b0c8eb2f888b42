package telemetry

import (
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
)

// PinState is the last reported level of a pin.
type PinState string

// Pin states. Unknown until the device reports.
const (
	PinUnknown PinState = "UNKNOWN"
	PinOn      PinState = PinState(mqtt.PinOn)
	PinOff     PinState = PinState(mqtt.PinOff)
)

// PinHandler receives pin state changes.
type PinHandler func(pin int, state PinState)

// GPIOBoard tracks the reported state of a device's pins.
type GPIOBoard struct {
	device string

	mu   sync.RWMutex
	pins map[int]PinState

	handlers  []PinHandler
	handlerMu sync.RWMutex
}

// NewGPIOBoard tracks pins on device. Pins reported by the device but not
// listed are added on first report.
func NewGPIOBoard(device string, pins []int) *GPIOBoard {
	b := &GPIOBoard{device: device, pins: make(map[int]PinState, len(pins))}
	for _, p := range pins {
		b.pins[p] = PinUnknown
	}
	return b
}

// HandleMessage applies a <device>/gpio/<pin>/state report.
func (b *GPIOBoard) HandleMessage(topic string, payload []byte) {
	device, pin, ok := mqtt.ParseGPIOState(topic)
	if !ok || device != b.device {
		return
	}

	state := PinState(strings.ToUpper(strings.TrimSpace(string(payload))))
	if state != PinOn && state != PinOff {
		state = PinUnknown
	}

	b.mu.Lock()
	prev, tracked := b.pins[pin]
	b.pins[pin] = state
	b.mu.Unlock()

	if tracked && prev == state {
		return
	}

	b.handlerMu.RLock()
	handlers := append([]PinHandler(nil), b.handlers...)
	b.handlerMu.RUnlock()
	for _, h := range handlers {
		h(pin, state)
	}
}

// State returns the state of pin and whether it is tracked.
func (b *GPIOBoard) State(pin int) (PinState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.pins[pin]
	return st, ok
}

// Pins returns the tracked pins in ascending order.
func (b *GPIOBoard) Pins() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pins := make([]int, 0, len(b.pins))
	for p := range b.pins {
		pins = append(pins, p)
	}
	sort.Ints(pins)
	return pins
}

// OnChange registers a handler called when a pin changes state.
func (b *GPIOBoard) OnChange(h PinHandler) {
	b.handlerMu.Lock()
	b.handlers = append(b.handlers, h)
	b.handlerMu.Unlock()
}
