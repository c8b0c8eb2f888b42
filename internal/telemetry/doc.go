// Package telemetry interprets device reports.
//
// Dashboard parses the aggregated status object published by the backend,
// GPIOBoard tracks reported pin states, and Recorder maps raw sensor topics
// onto InfluxDB points.
package telemetry
