package ph

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// Sink delivers one encoded message to a subscriber.
type Sink interface {
	Send(data []byte) error
}

// Streamer pushes a payload to one subscriber whenever it differs from what
// was last sent to that same subscriber. It keeps no state shared with other
// subscribers.
type Streamer[T any] struct {
	interval time.Duration
	source   func() (T, bool)
	sink     Sink
	last     []byte
	sent     int
}

// NewStreamer polls source every interval. A false second return value from
// source means there is nothing to send yet.
func NewStreamer[T any](interval time.Duration, source func() (T, bool), sink Sink) *Streamer[T] {
	return &Streamer[T]{interval: interval, source: source, sink: sink}
}

// Run polls immediately and then every interval. It returns nil when ctx is
// cancelled (the peer went away) or the first send error.
func (s *Streamer[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.poll(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sent is the number of messages delivered.
func (s *Streamer[T]) Sent() int { return s.sent }

func (s *Streamer[T]) poll() (bool, error) {
	v, ok := s.source()
	if !ok {
		return false, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	if s.last != nil && bytes.Equal(s.last, data) {
		return false, nil
	}
	if err := s.sink.Send(data); err != nil {
		return false, err
	}
	s.last = data
	s.sent++
	return true, nil
}
