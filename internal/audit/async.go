package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBufferSize is the queue length used when NewAsyncSink gets a
	// non-positive size.
	DefaultBufferSize = 64

	// writeTimeout bounds a single Writer call.
	writeTimeout = 10 * time.Second
)

// AsyncSink queues records and writes them serially through a Writer.
//
// Submit never blocks: when the queue is full the record is dropped and a
// warning logged. Records submitted after Stop are dropped too.
type AsyncSink struct {
	writer Writer
	logger *slog.Logger
	queue  chan Record

	mu      sync.RWMutex
	started bool
	stopped bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncSink creates a sink over w. Call Start before submitting.
func NewAsyncSink(w Writer, bufferSize int, logger *slog.Logger) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AsyncSink{
		writer: w,
		logger: logger,
		queue:  make(chan Record, bufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the drain goroutine. It returns when ctx is cancelled or
// Stop is called, after writing whatever is still queued.
func (s *AsyncSink) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.drain(ctx)
}

// Submit implements Sink.
func (s *AsyncSink) Submit(rec Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		s.dropped.Add(1)
		s.logger.Warn("audit sink stopped, dropping record", "topic", rec.Topic)
		return
	}

	select {
	case s.queue <- rec:
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit queue full, dropping record",
			"topic", rec.Topic,
			"capacity", cap(s.queue),
		)
	}
}

// Stop refuses further records, writes the queued ones and waits for the
// drain goroutine. Safe to call more than once.
func (s *AsyncSink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		started := s.started
		s.mu.Unlock()

		close(s.done)
		if !started {
			s.flush()
		}
	})
	s.wg.Wait()
}

// Written returns the number of records successfully written.
func (s *AsyncSink) Written() int64 { return s.written.Load() }

// Dropped returns the number of records discarded without a write attempt.
func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }

// Failed returns the number of records whose write failed.
func (s *AsyncSink) Failed() int64 { return s.failed.Load() }

func (s *AsyncSink) drain(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			s.flush()
			return
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *AsyncSink) flush() {
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		default:
			return
		}
	}
}

func (s *AsyncSink) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := s.writer.Write(ctx, rec)
	if err == nil {
		s.written.Add(1)
		return
	}
	s.failed.Add(1)
	if !errors.Is(err, ErrWriteFailed) {
		err = errors.Join(ErrWriteFailed, err)
	}
	s.logger.Error("audit write failed",
		"topic", rec.Topic,
		"user", rec.User,
		"error", err,
	)
}
