package ph

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

var errNoFlush = errors.New("streaming unsupported")

// sseSink writes server-sent events, one unnamed event per message.
type sseSink struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlush
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseSink{w: w, f: f}, nil
}

func (s *sseSink) Send(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// serveStream runs one change-detecting streamer for the lifetime of the
// request.
func serveStream[T any](m *Controller, name string, w http.ResponseWriter, r *http.Request, source func() (T, bool)) {
	sink, err := newSSESink(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log := m.log.WithFields(logrus.Fields{"stream": name, "remote": r.RemoteAddr})
	log.Debug("subscriber connected")
	st := NewStreamer(m.cfg.StreamInterval, source, sink)
	if err := st.Run(r.Context()); err != nil {
		log.Debugf("stream error: %v", err)
	}
	log.Debugf("subscriber closed after %d messages", st.Sent())
}
