package ph

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reefrhythm/reef-ph/controller/sensor"
)

// Sampler phases
const (
	PhaseWaitingHardware = "waiting_hardware"
	PhaseSampling        = "sampling"
	PhasePublish         = "publish"
	PhaseStopped         = "stopped"
)

var errImplausible = errors.New("implausible sample")

// consecutive dropped samples before a warning is logged
const failureWarn = 20

// Sampler owns one channel: it reads the source every tick, converts and
// filters the sample, and publishes the fast-window mean into the shared
// state.
type Sampler struct {
	ch     sensor.Channel
	cfg    ChannelConfig
	src    sensor.Source
	state  *State
	avg    *Averager
	tick   time.Duration
	poll   time.Duration
	phase  atomic.Value
	drops  atomic.Uint64
	pubs   atomic.Uint64
	failed int
	log    *logrus.Entry
}

func NewSampler(ch sensor.Channel, cfg ChannelConfig, src sensor.Source, state *State, tick, poll time.Duration) *Sampler {
	s := &Sampler{
		ch:    ch,
		cfg:   cfg,
		src:   src,
		state: state,
		avg:   NewAverager(cfg.Window),
		tick:  tick,
		poll:  poll,
		log:   logrus.WithFields(logrus.Fields{"module": "ph", "channel": ch}),
	}
	s.phase.Store(PhaseWaitingHardware)
	return s
}

// Run blocks until ctx is cancelled. A read reporting the hardware as not
// ready sends the sampler back to waiting for it.
func (s *Sampler) Run(ctx context.Context) {
	defer s.phase.Store(PhaseStopped)
	for {
		for !s.setup() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.poll):
			}
		}
		s.log.Info("start sampling")
		if !s.sampleUntilLost(ctx) {
			return
		}
		s.log.Warn("hardware lost, waiting for it")
	}
}

// sampleUntilLost ticks until the hardware goes away (true) or ctx is
// cancelled (false).
func (s *Sampler) sampleUntilLost(ctx context.Context) bool {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			s.sample()
			if s.Phase() == PhaseWaitingHardware {
				return true
			}
		}
	}
}

func (s *Sampler) Phase() string { return s.phase.Load().(string) }

// Dropped is the number of samples rejected so far.
func (s *Sampler) Dropped() uint64 { return s.drops.Load() }

// Published is the number of fast-window means written to the state.
func (s *Sampler) Published() uint64 { return s.pubs.Load() }

func (s *Sampler) setup() bool {
	if err := s.src.Setup(s.ch); err != nil {
		s.log.Debugf("waiting for hardware: %v", err)
		return false
	}
	s.phase.Store(PhaseSampling)
	return true
}

// sample performs one tick. It reports whether a mean was published.
func (s *Sampler) sample() bool {
	v, err := s.read()
	if errors.Is(err, sensor.ErrNotReady) {
		s.drops.Add(1)
		s.avg.DrainMean()
		s.phase.Store(PhaseWaitingHardware)
		s.log.Debugf("hardware not ready: %v", err)
		return false
	}
	if err != nil {
		s.drops.Add(1)
		s.failed++
		if s.failed == failureWarn {
			s.log.Warnf("%d consecutive samples dropped, last: %v", s.failed, err)
		} else {
			s.log.Debugf("sample dropped: %v", err)
		}
		return false
	}
	if s.failed >= failureWarn {
		s.log.Info("sensor recovered")
	}
	s.failed = 0

	s.avg.Push(v)
	if !s.avg.IsFull() {
		return false
	}
	s.phase.Store(PhasePublish)
	if m := s.avg.DrainMean(); m != nil {
		s.state.setSmoothed(s.ch, *m)
		s.pubs.Add(1)
	}
	s.phase.Store(PhaseSampling)
	return true
}

func (s *Sampler) read() (float64, error) {
	raw, err := s.src.Read(s.ch)
	if err != nil {
		return 0, err
	}
	if (raw == 0 && s.cfg.dropsZero()) || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, errImplausible
	}
	v := raw*s.cfg.Scale + s.cfg.Offset
	if s.cfg.Max > s.cfg.Min && (v < s.cfg.Min || v > s.cfg.Max) {
		return 0, errImplausible
	}
	return v, nil
}
