package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by NATSWriter.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSWriter publishes each record as JSON on a subject.
type NATSWriter struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	now     func() time.Time
}

// DialNATS connects to url and returns a writer publishing on subject.
func DialNATS(url, subject string, opts ...nats.Option) (*NATSWriter, error) {
	opts = append([]nats.Option{nats.Name("gpioremote-audit")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	w := NewNATSWriter(conn, subject)
	w.conn = conn
	return w, nil
}

// NewNATSWriter returns a writer over an existing publisher.
func NewNATSWriter(pub Publisher, subject string) *NATSWriter {
	return &NATSWriter{pub: pub, subject: subject, now: time.Now}
}

// Write implements Writer. CreatedAt is stamped when unset.
func (w *NATSWriter) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = w.now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %w", ErrWriteFailed, err)
	}
	if err := w.pub.Publish(w.subject, data); err != nil {
		return fmt.Errorf("%w: publishing to %s: %w", ErrWriteFailed, w.subject, err)
	}
	return nil
}

// Close drains the connection when the writer owns it.
func (w *NATSWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	if err := w.conn.Drain(); err != nil {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
