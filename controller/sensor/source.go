package sensor

import (
	"errors"
	"fmt"
)

// Channel names a logical sensor input.
type Channel string

const (
	ChannelPH          Channel = "ph_raw"
	ChannelTDS         Channel = "tds_raw"
	ChannelTemperature Channel = "temperature"
)

// Channels lists every channel the pH module samples.
var Channels = []Channel{ChannelPH, ChannelTDS, ChannelTemperature}

var (
	// ErrNotReady is returned while the hardware behind a channel is absent
	// or has not produced a value yet.
	ErrNotReady = errors.New("sensor not ready")
	// ErrSensorRead wraps any failed hardware read.
	ErrSensorRead = errors.New("sensor read failed")
	// ErrUnknownChannel is returned by sources that do not serve a channel.
	ErrUnknownChannel = errors.New("unknown channel")
)

// Source is the hardware capability consumed by the sampling pipeline.
// Setup is retried until it succeeds; Read is called once per tick.
type Source interface {
	Setup(ch Channel) error
	Read(ch Channel) (float64, error)
}

// Router dispatches each channel to the source wired for it, e.g. pH and TDS
// to an ADC and temperature to a 1-wire probe.
type Router map[Channel]Source

var _ Source = Router(nil)

func (r Router) Setup(ch Channel) error {
	s, ok := r[ch]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return s.Setup(ch)
}

func (r Router) Read(ch Channel) (float64, error) {
	s, ok := r[ch]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return s.Read(ch)
}
