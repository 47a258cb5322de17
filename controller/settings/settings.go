package settings

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/reefrhythm/reef-ph/controller/modules/ph"
	"github.com/reefrhythm/reef-ph/controller/sensor"
	"github.com/reefrhythm/reef-ph/controller/telemetry"
)

const (
	DriverMock    = "mock"
	DriverADS1115 = "ads1115"
	DriverSerial  = "serial"
)

// Settings is the daemon configuration.
type Settings struct {
	Database  string           `yaml:"database"`
	Address   string           `yaml:"address"`
	LogLevel  string           `yaml:"log_level"`
	Sensor    SensorConfig     `yaml:"sensor"`
	PH        ph.Config        `yaml:"ph"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Health    HealthConfig     `yaml:"health"`
}

// SensorConfig selects and wires the hardware behind the sampled channels.
type SensorConfig struct {
	// mock, ads1115 or serial
	Driver string `yaml:"driver"`

	// ADS1115 on the Pi I2C bus: address and single-ended input per channel.
	Address int                    `yaml:"i2c_address"`
	Inputs  map[sensor.Channel]int `yaml:"inputs"`

	// Probe board streaming key=value lines.
	Port   string        `yaml:"port"`
	Baud   int           `yaml:"baud"`
	MaxAge time.Duration `yaml:"max_age"`

	// DS18B20 water temperature probe; used with the ads1115 driver.
	OneWire OneWireConfig `yaml:"onewire"`
}

type OneWireConfig struct {
	Enable bool   `yaml:"enable"`
	Root   string `yaml:"root"`
	ID     string `yaml:"id"`
}

type HealthConfig struct {
	Enable   bool          `yaml:"enable"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns a configuration that runs against the mock sensor.
func Default() *Settings {
	return &Settings{
		Database: "reef-ph.db",
		Address:  "0.0.0.0:8080",
		LogLevel: "info",
		Sensor: SensorConfig{
			Driver:  DriverMock,
			Address: 0x48,
			Inputs: map[sensor.Channel]int{
				sensor.ChannelPH:  0,
				sensor.ChannelTDS: 1,
			},
			Port:   "/dev/ttyUSB0",
			Baud:   9600,
			MaxAge: 10 * time.Second,
		},
		PH: ph.DefaultConfig(),
		Telemetry: telemetry.Config{
			Prometheus: true,
		},
		Health: HealthConfig{
			Enable:   true,
			Interval: time.Minute,
		},
	}
}

// Load reads a YAML file. A missing file yields the defaults, missing fields
// are filled from them.
func Load(filename string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := s.ensureDefaults(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the configuration as YAML.
func (s *Settings) Save(filename string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (s *Settings) ensureDefaults() error {
	def := Default()
	if s.Database == "" {
		s.Database = def.Database
	}
	if s.Address == "" {
		s.Address = def.Address
	}
	if s.LogLevel == "" {
		s.LogLevel = def.LogLevel
	}
	switch s.Sensor.Driver {
	case "":
		s.Sensor.Driver = DriverMock
	case DriverMock, DriverADS1115, DriverSerial:
	default:
		return fmt.Errorf("unknown sensor driver %q", s.Sensor.Driver)
	}
	if s.Sensor.Address == 0 {
		s.Sensor.Address = def.Sensor.Address
	}
	if len(s.Sensor.Inputs) == 0 {
		s.Sensor.Inputs = def.Sensor.Inputs
	}
	if s.Sensor.Baud == 0 {
		s.Sensor.Baud = def.Sensor.Baud
	}
	if s.Sensor.MaxAge <= 0 {
		s.Sensor.MaxAge = def.Sensor.MaxAge
	}
	if s.Health.Interval <= 0 {
		s.Health.Interval = def.Health.Interval
	}
	s.PH.EnsureDefaults()
	return nil
}
