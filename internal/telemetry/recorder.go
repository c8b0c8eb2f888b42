package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// PointWriter queues a point for storage. *influxdb.Client implements it.
type PointWriter interface {
	WritePointAt(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Recorder writes every recognised device message to a PointWriter,
// stamped with the time it was received.
type Recorder struct {
	writer PointWriter
	now    func() time.Time
	logger *slog.Logger

	recorded atomic.Int64
	skipped  atomic.Int64
}

// NewRecorder returns a recorder over w.
func NewRecorder(w PointWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{writer: w, now: time.Now, logger: logger}
}

// HandleMessage has the mqtt.MessageHandler signature.
func (r *Recorder) HandleMessage(topic string, payload []byte) {
	p, ok := PointFor(topic, payload, r.now().UTC())
	if !ok {
		r.skipped.Add(1)
		r.logger.Debug("no telemetry in message", "topic", topic)
		return
	}
	r.writer.WritePointAt(p.Measurement, p.Tags, p.Fields, p.Time)
	r.recorded.Add(1)
}

// Recorded returns the number of points written.
func (r *Recorder) Recorded() int64 { return r.recorded.Load() }

// Skipped returns the number of messages that produced no point.
func (r *Recorder) Skipped() int64 { return r.skipped.Load() }
