package influxdb

import (
	"maps"
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePointAt queues one telemetry point. A zero ts means now.
//
// Non-finite float fields are removed, since line protocol cannot carry
// them and one such field fails the whole batch. The point is dropped, and
// counted in Stats, when the client is closed, when no field is left, or
// when it has no device_id tag and no default device was configured.
//
//	client.WritePointAt("dht11",
//	    map[string]string{"device_id": "esp32_02"},
//	    map[string]any{"temperature": 21.5, "humidity": 40.0},
//	    receivedAt)
func (c *Client) WritePointAt(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}

	clean := finiteFields(fields)
	if len(clean) == 0 {
		c.dropped.Add(1)
		return
	}

	if tags[DeviceTag] == "" {
		if c.defaultDevice == "" {
			c.dropped.Add(1)
			return
		}
		tags = maps.Clone(tags)
		if tags == nil {
			tags = make(map[string]string, 1)
		}
		tags[DeviceTag] = c.defaultDevice
	}

	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, clean, ts))
	c.queued.Add(1)
}

func finiteFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch f := v.(type) {
		case float64:
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
		case float32:
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				continue
			}
		}
		out[k] = v
	}
	return out
}
