// Package influxdb stores device telemetry in InfluxDB v2.
//
// It wraps influxdb-client-go with a ping-verified Connect, a non-blocking
// batched write API and a health check. Batch size and flush interval come
// from the influxdb section of config.yaml.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//	client.WritePointAt("ldr", map[string]string{"device_id": "esp32_02"}, map[string]any{"ldr_raw": 812}, time.Now())
package influxdb
