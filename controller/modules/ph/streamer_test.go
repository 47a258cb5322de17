package ph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	msgs []string
	err  error
}

func (s *recordSink) Send(data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, string(data))
	return nil
}

func replay[T any](values ...T) func() (T, bool) {
	i := 0
	return func() (T, bool) {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v, true
	}
}

func TestStreamerSuppressesDuplicates(t *testing.T) {
	sink := &recordSink{}
	s := NewStreamer(time.Millisecond, replay(7.0, 7.0, 7.0, 7.0, 7.0), sink)
	for i := 0; i < 5; i++ {
		s.poll()
	}
	assert.Equal(t, []string{"7"}, sink.msgs)
	assert.Equal(t, 1, s.Sent())
}

func TestStreamerSendsEveryChange(t *testing.T) {
	sink := &recordSink{}
	s := NewStreamer(time.Millisecond, replay(1, 2, 3, 2, 1), sink)
	for i := 0; i < 5; i++ {
		sent, err := s.poll()
		require.NoError(t, err)
		assert.True(t, sent)
	}
	assert.Equal(t, []string{"1", "2", "3", "2", "1"}, sink.msgs)
}

func TestStreamerComparesEncodedValue(t *testing.T) {
	a, b := 8.1, 8.1
	sink := &recordSink{}
	s := NewStreamer(time.Millisecond, replay(Reading{PH: &a}, Reading{PH: &b}), sink)
	s.poll()
	s.poll()
	assert.Len(t, sink.msgs, 1)
}

func TestStreamerWaitsForSource(t *testing.T) {
	sink := &recordSink{}
	ready := false
	s := NewStreamer(time.Millisecond, func() (int, bool) { return 1, ready }, sink)
	sent, err := s.poll()
	assert.NoError(t, err)
	assert.False(t, sent)
	ready = true
	sent, _ = s.poll()
	assert.True(t, sent)
}

func TestStreamerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordSink{}
	s := NewStreamer(time.Hour, replay("x"), sink)
	assert.NoError(t, s.Run(ctx))
	assert.Equal(t, []string{`"x"`}, sink.msgs)

	broken := &recordSink{err: errors.New("peer gone")}
	s = NewStreamer(time.Millisecond, replay("x"), broken)
	assert.EqualError(t, s.Run(context.Background()), "peer gone")
}
