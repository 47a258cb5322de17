package sensor

import (
	"fmt"

	"github.com/reef-pi/hal"
)

// AnalogPin is the part of a reef-pi analog input pin the pipeline reads.
type AnalogPin interface {
	Value() (float64, error)
}

var _ AnalogPin = hal.AnalogInputPin(nil)

// HAL serves channels from reef-pi analog input pins, letting any reef-pi
// driver with analog inputs feed the pipeline.
type HAL struct {
	pins map[Channel]AnalogPin
}

var _ Source = (*HAL)(nil)

func NewHAL(pins map[Channel]AnalogPin) *HAL {
	return &HAL{pins: pins}
}

// FromHAL adapts pins obtained from a reef-pi driver.
func FromHAL(pins map[Channel]hal.AnalogInputPin) *HAL {
	out := make(map[Channel]AnalogPin, len(pins))
	for ch, p := range pins {
		if p != nil {
			out[ch] = p
		}
	}
	return NewHAL(out)
}

func (h *HAL) Setup(ch Channel) error {
	if p, ok := h.pins[ch]; !ok || p == nil {
		return fmt.Errorf("%w: no analog input pin for %s", ErrNotReady, ch)
	}
	return nil
}

func (h *HAL) Read(ch Channel) (float64, error) {
	p, ok := h.pins[ch]
	if !ok || p == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	v, err := p.Value()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	return v, nil
}
