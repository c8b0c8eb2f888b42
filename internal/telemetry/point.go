package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Point is one time-series sample derived from an MQTT message.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

type fieldKind int

const (
	floatField fieldKind = iota
	intField
)

type fieldSpec struct {
	name string
	kind fieldKind
}

// sensorFields lists the fields kept for each sensor topic, in order.
var sensorFields = map[string][]fieldSpec{
	"bmp280": {{"temperature", floatField}, {"pressure", floatField}, {"pressure_sea_level", floatField}},
	"dht11":  {{"temperature", floatField}, {"humidity", floatField}},
	"mq135":  {{"adc_raw", intField}, {"ppm", floatField}},
	"ldr":    {{"ldr_raw", intField}},
}

// PointFor maps a device message onto a point. It returns false for topics
// that carry no telemetry, payloads that are not UTF-8, sensor payloads with
// no known field, and sensor payloads with a null or mistyped value.
//
// Recognised topics:
//
//	<device>/sensor/{bmp280,dht11,mq135,ldr}  JSON object
//	<device>/gpio/<pin>/state                 ON | OFF
//	<device>/status                           online | heartbeat | offline
//
// The device_id tag is the first topic segment.
func PointFor(topic string, payload []byte, at time.Time) (Point, bool) {
	if !utf8.Valid(payload) {
		return Point{}, false
	}
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] == "" {
		return Point{}, false
	}
	tags := map[string]string{"device_id": parts[0]}

	switch {
	case len(parts) == 3 && parts[1] == "sensor":
		specs, ok := sensorFields[parts[2]]
		if !ok {
			return Point{}, false
		}
		fields, ok := sensorPayload(payload, specs)
		if !ok {
			return Point{}, false
		}
		return Point{Measurement: parts[2], Tags: tags, Fields: fields, Time: at}, true

	case len(parts) == 4 && parts[1] == "gpio" && parts[3] == "state":
		pin := strings.TrimPrefix(parts[2], "gpio")
		if _, err := strconv.Atoi(pin); err != nil {
			return Point{}, false
		}
		tags["pin"] = "gpio" + pin
		state := strings.ToUpper(strings.TrimSpace(string(payload)))
		return Point{Measurement: "gpio_state", Tags: tags, Fields: map[string]any{"state": state}, Time: at}, true

	case len(parts) == 2 && parts[1] == "status":
		return Point{Measurement: "device_status", Tags: tags, Fields: map[string]any{"status": string(payload)}, Time: at}, true
	}

	return Point{}, false
}

func sensorPayload(payload []byte, specs []fieldSpec) (map[string]any, bool) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, false
	}

	fields := make(map[string]any, len(specs))
	for _, spec := range specs {
		raw, present := data[spec.name]
		if !present {
			continue
		}
		v, ok := convert(raw, spec.kind)
		if !ok {
			// One bad value drops the whole sample.
			return nil, false
		}
		fields[spec.name] = v
	}
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

func convert(raw json.RawMessage, kind fieldKind) (any, bool) {
	if absent(raw) {
		return nil, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if kind == intField {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, false
			}
			return n, true
		}
		f, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if kind == intField {
		return int64(f), true
	}
	return f, true
}
