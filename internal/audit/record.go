package audit

import (
	"context"
	"fmt"
	"time"
)

// Record is one row of the message log.
type Record struct {
	ID        int64     `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	User      string    `json:"user"`
}

// Validate reports ErrMissingFields when any of topic, message or user is empty.
func (r Record) Validate() error {
	if r.Topic == "" || r.Message == "" || r.User == "" {
		return fmt.Errorf("%w: topic, message and user are required", ErrMissingFields)
	}
	return nil
}

// Sink accepts records without blocking the caller and without reporting
// failure.
type Sink interface {
	Submit(rec Record)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec Record)

// Submit calls f(rec).
func (f SinkFunc) Submit(rec Record) { f(rec) }

// Discard is a Sink that drops every record.
var Discard Sink = SinkFunc(func(Record) {})

// Writer persists a single record.
type Writer interface {
	Write(ctx context.Context, rec Record) error
}
