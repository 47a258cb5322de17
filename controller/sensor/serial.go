package sensor

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

// Serial reads channel values streamed by a microcontroller as text lines:
//
//	ph_raw=1.552,tds_raw=0.412,temperature=25.44
//
// The latest value of each channel is kept; values older than MaxAge fail to
// read. While the port is closed every read reports ErrNotReady, so the
// caller runs Setup again to reopen it.
type Serial struct {
	port     string
	baudRate int
	maxAge   time.Duration
	open     func(port string, mode *serial.Mode) (io.ReadCloser, error)

	mu     sync.Mutex
	conn   io.ReadCloser
	values map[Channel]stamped
	now    func() time.Time
}

type stamped struct {
	v  float64
	at time.Time
}

var _ Source = (*Serial)(nil)

func NewSerial(port string, baudRate int, maxAge time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if maxAge == 0 {
		maxAge = 5 * time.Second
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
		maxAge:   maxAge,
		open: func(port string, mode *serial.Mode) (io.ReadCloser, error) {
			return serial.Open(port, mode)
		},
		values: make(map[Channel]stamped),
		now:    time.Now,
	}
}

// Setup opens the port once; every channel shares the connection.
func (s *Serial) Setup(_ Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := s.open(s.port, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("%w: failed to open serial port %s: %v", ErrNotReady, s.port, err)
	}
	s.conn = conn
	go s.readLines(conn)
	return nil
}

func (s *Serial) Read(ch Channel) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, fmt.Errorf("%w: serial port %s closed", ErrNotReady, s.port)
	}
	v, ok := s.values[ch]
	if !ok || s.now().Sub(v.at) > s.maxAge {
		return 0, fmt.Errorf("%w: no fresh %s value", ErrSensorRead, ch)
	}
	return v.v, nil
}

// Close releases the port. A later Setup reopens it.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Serial) readLines(conn io.ReadCloser) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		values, err := parseSerialLine(line)
		if err != nil {
			logrus.WithField("module", "sensor").Debugf("failed to parse line '%s': %v", line, err)
			continue
		}
		s.mu.Lock()
		now := s.now()
		for ch, v := range values {
			s.values[ch] = stamped{v: v, at: now}
		}
		s.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		logrus.WithField("module", "sensor").Warnf("serial port %s closed: %v", s.port, err)
	}
	s.mu.Lock()
	if s.conn == conn {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}

func parseSerialLine(line string) (map[Channel]float64, error) {
	out := make(map[Channel]float64)
	for _, field := range strings.Split(line, ",") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("invalid field %q", field)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", k, err)
		}
		out[Channel(strings.TrimSpace(k))] = f
	}
	return out, nil
}
