package sensor

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/reef-pi/rpi/i2c"
)

// Bus is the I2C subset the ADS1115 driver uses.
type Bus interface {
	WriteBytes(addr byte, value []byte) error
	ReadBytes(addr byte, num int) ([]byte, error)
}

var _ Bus = i2c.Bus(nil)

const (
	DefaultADS1115Addr = 0x48

	adsRegConversion = 0x00
	adsRegConfig     = 0x01

	adsOSSingle    = 0x8000
	adsMuxSingle0  = 0x4000 // AIN0 vs GND, AINn = adsMuxSingle0 + n<<12
	adsPGA4V       = 0x0200 // +/-4.096V
	adsModeSingle  = 0x0100
	adsRate128SPS  = 0x0080
	adsCompDisable = 0x0003
)

// ADS1115 reads single-ended conversions from a TI ADS1115. Values are raw
// signed counts; conversion to volts is a channel setting.
type ADS1115 struct {
	bus        Bus
	addr       byte
	inputs     map[Channel]int
	conversion time.Duration
}

var _ Source = (*ADS1115)(nil)

// NewADS1115 binds channels to analog inputs (0-3) of the converter at addr.
func NewADS1115(bus Bus, addr byte, inputs map[Channel]int) *ADS1115 {
	if addr == 0 {
		addr = DefaultADS1115Addr
	}
	return &ADS1115{
		bus:        bus,
		addr:       addr,
		inputs:     inputs,
		conversion: 10 * time.Millisecond,
	}
}

// Setup probes the config register so an absent chip keeps the channel waiting.
func (a *ADS1115) Setup(ch Channel) error {
	if _, ok := a.inputs[ch]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	if err := a.bus.WriteBytes(a.addr, []byte{adsRegConfig}); err != nil {
		return fmt.Errorf("%w: ads1115 at 0x%02x: %v", ErrNotReady, a.addr, err)
	}
	if _, err := a.bus.ReadBytes(a.addr, 2); err != nil {
		return fmt.Errorf("%w: ads1115 at 0x%02x: %v", ErrNotReady, a.addr, err)
	}
	return nil
}

func (a *ADS1115) Read(ch Channel) (float64, error) {
	input, ok := a.inputs[ch]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	if input < 0 || input > 3 {
		return 0, fmt.Errorf("%w: invalid ads1115 input %d", ErrSensorRead, input)
	}
	cfg := uint16(adsOSSingle | adsPGA4V | adsModeSingle | adsRate128SPS | adsCompDisable)
	cfg |= uint16(adsMuxSingle0 + input<<12)

	buf := make([]byte, 3)
	buf[0] = adsRegConfig
	binary.BigEndian.PutUint16(buf[1:], cfg)
	if err := a.bus.WriteBytes(a.addr, buf); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	time.Sleep(a.conversion)

	if err := a.bus.WriteBytes(a.addr, []byte{adsRegConversion}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	data, err := a.bus.ReadBytes(a.addr, 2)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	if len(data) != 2 {
		return 0, fmt.Errorf("%w: short read (%d bytes)", ErrSensorRead, len(data))
	}
	return float64(int16(binary.BigEndian.Uint16(data))), nil
}
