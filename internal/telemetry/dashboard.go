package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Placeholder is rendered for any reading the dashboard did not report.
const Placeholder = "-"

// Dashboard is the aggregated status object. Every field is optional; nil
// means the backend did not report it.
type Dashboard struct {
	DeviceStatus           *string
	DHT11Temperature       *float64
	DHT11Humidity          *float64
	BMP280Temperature      *float64
	BMP280Pressure         *float64
	BMP280SeaLevelPressure *float64
	MQ135PPM               *float64
	LDRRaw                 *float64
	LastUpdate             *string
}

// Reading is one rendered dashboard value.
type Reading struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ParseDashboard decodes a dashboard payload. Only a payload that is not a
// JSON object is an error; missing, null or mistyped fields are left nil.
func ParseDashboard(payload []byte) (Dashboard, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Dashboard{}, fmt.Errorf("decoding dashboard: %w", err)
	}

	return Dashboard{
		DeviceStatus:           text(raw["device_status"]),
		DHT11Temperature:       number(raw["dht11_temperature"]),
		DHT11Humidity:          number(raw["dht11_humidity"]),
		BMP280Temperature:      number(raw["bmp280_temperature"]),
		BMP280Pressure:         number(raw["bmp280_pressure"]),
		BMP280SeaLevelPressure: number(raw["bmp280_sea_level_pressure"]),
		MQ135PPM:               number(raw["mq135_ppm"]),
		LDRRaw:                 number(raw["ldr_raw"]),
		LastUpdate:             text(raw["last_update"]),
	}, nil
}

// Readings renders every field in display order with its unit.
func (d Dashboard) Readings() []Reading {
	return []Reading{
		{"device_status", "Device status", textValue(d.DeviceStatus)},
		{"dht11_temperature", "DHT11 temperature", withUnit(d.DHT11Temperature, "°C")},
		{"dht11_humidity", "DHT11 humidity", withUnit(d.DHT11Humidity, "%")},
		{"bmp280_temperature", "BMP280 temperature", withUnit(d.BMP280Temperature, "°C")},
		{"bmp280_pressure", "BMP280 pressure", withUnit(d.BMP280Pressure, "hPa")},
		{"bmp280_sea_level_pressure", "BMP280 sea level pressure", withUnit(d.BMP280SeaLevelPressure, "hPa")},
		{"mq135_ppm", "MQ135 air quality", withUnit(d.MQ135PPM, "ppm")},
		{"ldr_raw", "LDR light level", withUnit(d.LDRRaw, "")},
		{"last_update", "Last update", textValue(d.LastUpdate)},
	}
}

// absent reports whether a field was left out or sent as null.
func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func text(raw json.RawMessage) *string {
	if absent(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s
	}
	return nil
}

func number(raw json.RawMessage) *float64 {
	if absent(raw) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}
	return nil
}

func textValue(s *string) string {
	if s == nil {
		return Placeholder
	}
	return *s
}

func withUnit(v *float64, unit string) string {
	if v == nil {
		return Placeholder
	}
	formatted := strconv.FormatFloat(*v, 'f', -1, 64)
	if unit == "" {
		return formatted
	}
	return formatted + " " + unit
}
