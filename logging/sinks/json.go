package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"gridrun/server/logging"
)

// JSON emits newline-delimited structured events. Writes are buffered;
// MaxBatch bounds how many events sit unflushed and a background ticker
// flushes on the configured interval.
type JSON struct {
	mu        sync.Mutex
	writer    *bufio.Writer
	encoder   *json.Encoder
	pending   int
	maxBatch  int
	autoFlush bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewJSON constructs a JSON sink writing to the provided io.Writer. A
// non-positive flush interval makes every write flush immediately.
func NewJSON(w io.Writer, cfg logging.JSONConfig) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{
		writer:    buf,
		encoder:   json.NewEncoder(buf),
		maxBatch:  cfg.MaxBatch,
		autoFlush: cfg.FlushInterval <= 0,
		done:      make(chan struct{}),
	}
	if cfg.FlushInterval > 0 {
		go sink.periodicFlush(cfg.FlushInterval)
	}
	return sink
}

func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(event); err != nil {
		return err
	}
	s.pending++
	if s.autoFlush || (s.maxBatch > 0 && s.pending >= s.maxBatch) {
		s.pending = 0
		return s.writer.Flush()
	}
	return nil
}

// Close stops the flush ticker and drains the buffer.
func (s *JSON) Close(context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = 0
	return s.writer.Flush()
}

func (s *JSON) periodicFlush(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.writer.Flush()
			s.pending = 0
			s.mu.Unlock()
		}
	}
}
