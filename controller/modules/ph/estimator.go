package ph

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reefrhythm/reef-ph/controller/sensor"
)

// Estimator is the second smoothing stage. Once a first-stage pH value and a
// calibration curve both exist, it averages SlowWindow consecutive
// first-stage values and maps each completed mean through the curve in force
// at that moment.
type Estimator struct {
	state     *State
	avg       *Averager
	tick      time.Duration
	tds       *Formula
	onPublish func(*Reading)
	ready     atomic.Bool
	published atomic.Uint64
	log       *logrus.Entry
}

func NewEstimator(state *State, window int, tick time.Duration, tds *Formula, onPublish func(*Reading)) *Estimator {
	return &Estimator{
		state:     state,
		avg:       NewAverager(window),
		tick:      tick,
		tds:       tds,
		onPublish: onPublish,
		log:       logrus.WithField("module", "ph"),
	}
}

// Run blocks until ctx is cancelled.
func (e *Estimator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.step()
		}
	}
}

// Published is the number of readings written to the state.
func (e *Estimator) Published() uint64 { return e.published.Load() }

// Ready reports whether the startup dependencies were met.
func (e *Estimator) Ready() bool { return e.ready.Load() }

// step runs one tick and reports whether a reading was published.
func (e *Estimator) step() bool {
	v := e.state.Smoothed(sensor.ChannelPH)
	if !e.ready.Load() {
		if v == nil || e.state.Curve() == nil {
			return false
		}
		e.ready.Store(true)
		e.log.Info("start ph estimation")
	}
	// first-stage cells are never cleared, so v stays non-nil once seen
	e.avg.Push(*v)
	if !e.avg.IsFull() {
		return false
	}
	mean := e.avg.DrainMean()
	curve := e.state.Curve()
	ph := round(curve.Lookup(*mean), precision)

	r := &Reading{
		PH:          &ph,
		PHRaw:       e.state.Smoothed(sensor.ChannelPH),
		TDSRaw:      e.state.Smoothed(sensor.ChannelTDS),
		Temperature: e.state.Smoothed(sensor.ChannelTemperature),
		Time:        time.Now(),
	}
	r.TDS = e.ppm(r.TDSRaw, r.Temperature)
	e.state.setReading(r)
	e.published.Add(1)
	e.log.Debugf("adc: %g, ph: %g", *mean, ph)
	if e.onPublish != nil {
		e.onPublish(r)
	}
	return true
}

func (e *Estimator) ppm(v, t *float64) *float64 {
	if e.tds == nil || v == nil {
		return nil
	}
	ppm, err := e.tds.Eval(*v, t)
	if err != nil {
		e.log.Warnf("tds: %v", err)
		return nil
	}
	ppm = round(ppm, 2)
	return &ppm
}
