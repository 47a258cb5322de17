package ph

import (
	"time"

	"github.com/reefrhythm/reef-ph/controller/sensor"
)

// BoltDB buckets
const (
	Bucket            = "ph"
	CalibrationBucket = "ph_calibration"
)

// ChannelConfig describes how raw reads of one channel are turned into a
// first-stage smoothed value.
type ChannelConfig struct {
	// Fast window, in samples.
	Window int `json:"window" yaml:"window"`

	// Linear conversion applied to every raw read: v = raw*Scale + Offset.
	// ADS1115 counts at +/-4.096V use a scale of 0.000125.
	Scale  float64 `json:"scale" yaml:"scale"`
	Offset float64 `json:"offset" yaml:"offset"`

	// Plausible range of converted values. Ignored when Max <= Min.
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`

	// DropZero rejects reads of exactly zero, which an ADC returns before its
	// first conversion. Unset means true.
	DropZero *bool `json:"drop_zero,omitempty" yaml:"drop_zero,omitempty"`
}

func (c ChannelConfig) dropsZero() bool {
	return c.DropZero == nil || *c.DropZero
}

// Config holds the pH module settings supplied by the embedding daemon.
type Config struct {
	Enable bool `json:"enable" yaml:"enable"`

	// Sampler cadence and how often absent hardware is probed again.
	Tick         time.Duration `json:"tick" yaml:"tick"`
	HardwarePoll time.Duration `json:"hardware_poll" yaml:"hardware_poll"`

	// Second stage: one first-stage value is taken per EstimatorTick and
	// SlowWindow of them are averaged before the curve lookup.
	EstimatorTick time.Duration `json:"estimator_tick" yaml:"estimator_tick"`
	SlowWindow    int           `json:"slow_window" yaml:"slow_window"`

	// Live stream polling interval.
	StreamInterval time.Duration `json:"stream_interval" yaml:"stream_interval"`

	// Curve shape.
	Resolution  int     `json:"resolution" yaml:"resolution"`
	PhysicalMin float64 `json:"physical_min" yaml:"physical_min"`
	PhysicalMax float64 `json:"physical_max" yaml:"physical_max"`

	Channels map[sensor.Channel]ChannelConfig `json:"channels" yaml:"channels"`

	// TDS ppm expression over v (volts) and t (celsius). Empty disables it.
	TDSFormula string `json:"tds_formula" yaml:"tds_formula"`

	// RRULE (e.g. "FREQ=MINUTELY;INTERVAL=5") pushing the latest reading to
	// the telemetry backends. Empty disables reporting.
	ReportSchedule string `json:"report_schedule" yaml:"report_schedule"`
}

const adsVoltsPerCount = 4.096 / 32768

const DefaultTDSFormula = "(133.42*v*v*v - 255.86*v*v + 857.39*v) * 0.5 / (1 + 0.02*(t - 25))"

func DefaultConfig() Config {
	return Config{
		Enable:         true,
		Tick:           500 * time.Millisecond,
		HardwarePoll:   5 * time.Second,
		EstimatorTick:  time.Second,
		SlowWindow:     15,
		StreamInterval: time.Second,
		Resolution:     10,
		PhysicalMin:    0,
		PhysicalMax:    14,
		Channels: map[sensor.Channel]ChannelConfig{
			sensor.ChannelPH:          {Window: 5, Scale: adsVoltsPerCount},
			sensor.ChannelTDS:         {Window: 5, Scale: adsVoltsPerCount},
			sensor.ChannelTemperature: {Window: 5, Scale: 1, Min: -10, Max: 60, DropZero: new(bool)},
		},
		TDSFormula: DefaultTDSFormula,
	}
}

// EnsureDefaults fills zero values from DefaultConfig.
func (c *Config) EnsureDefaults() {
	def := DefaultConfig()
	if c.Tick <= 0 {
		c.Tick = def.Tick
	}
	if c.HardwarePoll <= 0 {
		c.HardwarePoll = def.HardwarePoll
	}
	if c.EstimatorTick <= 0 {
		c.EstimatorTick = def.EstimatorTick
	}
	if c.SlowWindow <= 0 {
		c.SlowWindow = def.SlowWindow
	}
	if c.StreamInterval <= 0 {
		c.StreamInterval = def.StreamInterval
	}
	if c.Resolution <= 0 {
		c.Resolution = def.Resolution
	}
	if c.PhysicalMax <= c.PhysicalMin {
		c.PhysicalMin, c.PhysicalMax = def.PhysicalMin, def.PhysicalMax
	}
	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}
	for ch, cc := range c.Channels {
		c.Channels[ch] = cc.withDefaults(def.Channels[ch])
	}
}

// withDefaults fills the unset fields of c from def, the built-in settings of
// the same channel (zero for channels without one).
func (c ChannelConfig) withDefaults(def ChannelConfig) ChannelConfig {
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Window <= 0 {
		c.Window = 5
	}
	if c.Scale == 0 {
		c.Scale = def.Scale
	}
	if c.Scale == 0 {
		c.Scale = 1
	}
	if c.Min == 0 && c.Max == 0 {
		c.Min, c.Max = def.Min, def.Max
	}
	if c.DropZero == nil && def.DropZero != nil {
		v := *def.DropZero
		c.DropZero = &v
	}
	return c
}
