package ph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/reefrhythm/reef-ph/controller"
	"github.com/reefrhythm/reef-ph/controller/sensor"
)

// Store is the subset of the controller store the module needs.
type Store interface {
	CreateBucket(bucket string) error
	Get(bucket, id string, v interface{}) error
	List(bucket string, fn func(string, []byte) error) error
	Replace(bucket string, items map[string]interface{}) error
}

// Controller implements controller.Subsystem for the pH / TDS / temperature
// probes.
type Controller struct {
	c         controller.Controller
	store     Store
	cfg       Config
	state     *State
	channels  []sensor.Channel
	samplers  map[sensor.Channel]*Sampler
	estimator *Estimator

	calMu   sync.Mutex
	pending map[string]CalibrationPoint

	logs   []string
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logrus.Entry
}

var _ controller.Subsystem = (*Controller)(nil)

// New constructs the subsystem and ensures its buckets exist.
func New(cfg Config, src sensor.Source, c controller.Controller) (*Controller, error) {
	cfg.EnsureDefaults()
	if _, ok := cfg.Channels[sensor.ChannelPH]; !ok {
		return nil, fmt.Errorf("channel %s is not configured", sensor.ChannelPH)
	}
	for _, b := range []string{Bucket, CalibrationBucket} {
		if err := c.Store().CreateBucket(b); err != nil {
			return nil, err
		}
	}
	tds, err := NewFormula(cfg.TDSFormula)
	if err != nil {
		return nil, err
	}

	channels := make([]sensor.Channel, 0, len(cfg.Channels))
	for ch := range cfg.Channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	m := &Controller{
		c:        c,
		store:    c.Store(),
		cfg:      cfg,
		state:    NewState(channels...),
		channels: channels,
		samplers: make(map[sensor.Channel]*Sampler, len(channels)),
		pending:  make(map[string]CalibrationPoint),
		log:      logrus.WithField("module", "ph"),
	}
	for _, ch := range channels {
		m.samplers[ch] = NewSampler(ch, cfg.Channels[ch], src, m.state, cfg.Tick, cfg.HardwarePoll)
	}
	m.estimator = NewEstimator(m.state, cfg.SlowWindow, cfg.EstimatorTick, tds, m.emit)
	return m, nil
}

// Setup loads stored calibration points and builds the initial curve. A
// stored set that no longer builds leaves the module without a curve.
func (m *Controller) Setup() error {
	points, err := m.loadPoints()
	if err != nil {
		return err
	}
	cal := &Calibration{Points: points}
	var meta calibrationMeta
	if err := m.store.Get(Bucket, metaKey, &meta); err == nil && meta.Updated > 0 {
		cal.Updated = time.Unix(meta.Updated, 0)
	}

	switch curve, err := BuildCurve(points, m.cfg.Resolution, m.cfg.PhysicalMin, m.cfg.PhysicalMax); {
	case len(points) == 0:
		m.log.Info("no calibration points stored")
	case err != nil:
		m.c.LogError("ph", "stored calibration ignored: "+err.Error())
	default:
		cal.Curve = curve
		m.log.Infof("loaded %d calibration points", len(points))
	}
	m.state.setCalibration(cal)
	return nil
}

// Start launches one sampler per channel, the estimator and the report
// schedule.
func (m *Controller) Start() {
	if !m.cfg.Enable {
		m.log.Info("disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for _, ch := range m.channels {
		s := m.samplers[ch]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			s.Run(ctx)
		}()
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.estimator.Run(ctx)
	}()

	if m.cfg.ReportSchedule != "" {
		if err := StartSchedule(ctx, m.cfg.ReportSchedule, m.report); err != nil {
			m.c.LogError("ph", "report schedule: "+err.Error())
		}
	}
}

// Stop cancels every task and waits for them to return.
func (m *Controller) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.cancel = nil
}

// State exposes the shared cells to embedding code.
func (m *Controller) State() *State { return m.state }

// Live is the reading stream payload: the last estimated values combined
// with the current first-stage cells, so raw values are visible before a
// calibration exists.
func (m *Controller) Live() Reading {
	r := Reading{
		PHRaw:       m.state.Smoothed(sensor.ChannelPH),
		TDSRaw:      m.state.Smoothed(sensor.ChannelTDS),
		Temperature: m.state.Smoothed(sensor.ChannelTemperature),
	}
	if last := m.state.Reading(); last != nil {
		r.PH = last.PH
		r.TDS = last.TDS
		r.Time = last.Time
	}
	return r
}

// CurveView is the curve stream payload: the full chart, the interpolated
// segment and the extrapolated tails.
type CurveView struct {
	Chart        []CurvePoint `json:"PhChartPoints"`
	Segment      []CurvePoint `json:"curve_points"`
	Extrapolated []CurvePoint `json:"extrapolated_domain_points"`
}

// Curve returns the view of the curve in force.
func (m *Controller) Curve() (CurveView, error) {
	c := m.state.Curve()
	if c == nil {
		return CurveView{}, ErrCurveUnavailable
	}
	return CurveView{Chart: c.Points, Segment: c.Segment, Extrapolated: c.Tails}, nil
}

type ChannelStatus struct {
	Phase     string   `json:"phase"`
	Value     *float64 `json:"value"`
	Dropped   uint64   `json:"dropped"`
	Published uint64   `json:"published"`
}

type Status struct {
	Channels   map[sensor.Channel]ChannelStatus `json:"channels"`
	Curve      bool                             `json:"curve"`
	Points     int                              `json:"points"`
	Calibrated string                           `json:"calibrated,omitempty"`
	Estimating bool                             `json:"estimating"`
	Readings   uint64                           `json:"readings"`
}

func (m *Controller) Status() Status {
	cal := m.state.Calibration()
	st := Status{
		Channels:   make(map[sensor.Channel]ChannelStatus, len(m.channels)),
		Curve:      cal.Curve != nil,
		Points:     len(cal.Points),
		Estimating: m.estimator.Ready(),
		Readings:   m.estimator.Published(),
	}
	if !cal.Updated.IsZero() {
		st.Calibrated = humanize.Time(cal.Updated)
	}
	for _, ch := range m.channels {
		s := m.samplers[ch]
		st.Channels[ch] = ChannelStatus{
			Phase:     s.Phase(),
			Value:     m.state.Smoothed(ch),
			Dropped:   s.Dropped(),
			Published: s.Published(),
		}
	}
	return st
}

// emit pushes a fresh reading to the live telemetry gauges.
func (m *Controller) emit(r *Reading) {
	t := m.c.Telemetry()
	if t == nil {
		return
	}
	for name, v := range readingMetrics(r) {
		t.EmitMetric("ph", name, v)
	}
}

// report pushes the latest reading to the telemetry backends.
func (m *Controller) report() {
	t := m.c.Telemetry()
	r := m.state.Reading()
	if t == nil || r == nil {
		return
	}
	for name, v := range readingMetrics(r) {
		t.Report("ph", name, v)
	}
}

func readingMetrics(r *Reading) map[string]float64 {
	out := make(map[string]float64, 5)
	add := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	add("ph", r.PH)
	add("ph_raw", r.PHRaw)
	add("tds_raw", r.TDSRaw)
	add("tds", r.TDS)
	add("temperature", r.Temperature)
	return out
}

// appendLog adds an entry to the in-memory activity log, capped at 100 entries.
func (m *Controller) appendLog(msg string) {
	entry := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), msg)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	if len(m.logs) > 100 {
		m.logs = m.logs[len(m.logs)-100:]
	}
}

// Logs returns a copy of the activity log.
func (m *Controller) Logs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.logs...)
}

// ChannelEntity describes one sampled channel.
type ChannelEntity struct {
	Channel sensor.Channel `json:"channel"`
	Window  int            `json:"window"`
}

func (e ChannelEntity) EName() string { return string(e.Channel) }

func (m *Controller) GetEntity(id string) (controller.Entity, error) {
	ch := sensor.Channel(id)
	cfg, ok := m.cfg.Channels[ch]
	if !ok {
		return nil, fmt.Errorf("channel %s not found", id)
	}
	return ChannelEntity{Channel: ch, Window: cfg.Window}, nil
}

// The probes do not depend on other subsystems and have no outputs.
func (m *Controller) InUse(string, string) ([]string, error) { return nil, nil }
func (m *Controller) On(string, bool) error                  { return nil }
