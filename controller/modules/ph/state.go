package ph

import (
	"sync/atomic"
	"time"

	"github.com/reefrhythm/reef-ph/controller/sensor"
)

// Reading is the second-stage snapshot exposed to consumers. Nil fields are
// not known yet.
type Reading struct {
	PH          *float64  `json:"ph"`
	PHRaw       *float64  `json:"ph_adc"`
	TDSRaw      *float64  `json:"tds_adc"`
	TDS         *float64  `json:"tds"`
	Temperature *float64  `json:"temp"`
	Time        time.Time `json:"-"`
}

// State holds the shared cells of the module. Every cell has one writer and
// is replaced wholesale, so readers never observe a partial value.
//   - smoothed[ch]: written by the sampler of ch
//   - reading: written by the estimator
//   - calibration: written by the calibration upload
type State struct {
	smoothed    map[sensor.Channel]*atomic.Pointer[float64]
	reading     atomic.Pointer[Reading]
	calibration atomic.Pointer[Calibration]
}

// Calibration pairs the stored points with the curve built from them. Curve
// is nil when the points do not build one. Updated is zero when unknown.
type Calibration struct {
	Points  map[string]CalibrationPoint
	Curve   *Curve
	Updated time.Time
}

// NewState allocates a cell per channel. The channel set is fixed for the
// life of the state.
func NewState(channels ...sensor.Channel) *State {
	s := &State{smoothed: make(map[sensor.Channel]*atomic.Pointer[float64], len(channels))}
	for _, ch := range channels {
		s.smoothed[ch] = new(atomic.Pointer[float64])
	}
	s.calibration.Store(&Calibration{Points: map[string]CalibrationPoint{}})
	return s
}

// Smoothed returns a copy of the latest first-stage value of ch, nil until
// the first window completed.
func (s *State) Smoothed(ch sensor.Channel) *float64 {
	cell, ok := s.smoothed[ch]
	if !ok {
		return nil
	}
	v := cell.Load()
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (s *State) setSmoothed(ch sensor.Channel, v float64) {
	if cell, ok := s.smoothed[ch]; ok {
		cell.Store(&v)
	}
}

// Reading returns the latest published snapshot or nil.
func (s *State) Reading() *Reading {
	return s.reading.Load()
}

func (s *State) setReading(r *Reading) {
	s.reading.Store(r)
}

// Calibration returns the calibration in force. It is never nil and must not
// be modified.
func (s *State) Calibration() *Calibration {
	return s.calibration.Load()
}

func (s *State) setCalibration(c *Calibration) {
	s.calibration.Store(c)
}

// Curve returns the calibration curve in force or nil.
func (s *State) Curve() *Curve {
	return s.calibration.Load().Curve
}
