// Package audit records published commands and inbound MQTT traffic in the
// mqtt_logs table.
//
// Producers hand a Record to a Sink. The AsyncSink decouples them from the
// storage round trip: records are queued on a bounded channel, written
// serially by a single goroutine, and dropped with a warning when the queue
// is full. Write failures are logged and never reach the producer.
//
// Writers available to the sink:
//   - Repository: direct SQL insert (SQLite or PostgreSQL)
//   - HTTPClient: POST to a remote /log endpoint
//   - NATSWriter: JSON fan-out on a NATS subject
package audit
