package sensor

import (
	"fmt"
	"math"
	"sync"
)

// Mock is a deterministic Source. Each channel replays its script of values
// in order and then repeats the last one. A NaN entry in a script is served
// as a read failure.
type Mock struct {
	mu       sync.Mutex
	scripts  map[Channel][]float64
	pos      map[Channel]int
	setupErr map[Channel]error
	Reads    map[Channel]int
}

var _ Source = (*Mock)(nil)

func NewMock(scripts map[Channel][]float64) *Mock {
	if scripts == nil {
		scripts = map[Channel][]float64{}
	}
	return &Mock{
		scripts:  scripts,
		pos:      make(map[Channel]int),
		setupErr: make(map[Channel]error),
		Reads:    make(map[Channel]int),
	}
}

// NewDevMock mirrors a probe sitting in pH 7 buffer at 25 degrees. pH and
// TDS are served as ADS1115 counts at +/-4.096V (about 1.55V and 0.42V).
func NewDevMock() *Mock {
	return NewMock(map[Channel][]float64{
		ChannelPH:          {12400, 12480, 12320, 12400, 12400},
		ChannelTDS:         {3280, 3360, 3360, 3440, 3360},
		ChannelTemperature: {25.5},
	})
}

// FailSetup makes Setup return err for ch until cleared with nil.
func (m *Mock) FailSetup(ch Channel, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setupErr[ch] = err
}

// Script replaces the remaining values of a channel.
func (m *Mock) Script(ch Channel, values ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[ch] = values
	m.pos[ch] = 0
}

func (m *Mock) Setup(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setupErr[ch]; err != nil {
		return err
	}
	if _, ok := m.scripts[ch]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return nil
}

func (m *Mock) Read(ch Channel) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads[ch]++
	script := m.scripts[ch]
	if len(script) == 0 {
		return 0, ErrNotReady
	}
	i := m.pos[ch]
	if i >= len(script) {
		i = len(script) - 1
	} else {
		m.pos[ch] = i + 1
	}
	v := script[i]
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: scripted failure", ErrSensorRead)
	}
	return v, nil
}
