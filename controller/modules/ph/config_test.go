package ph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reefrhythm/reef-ph/controller/sensor"
)

func TestEnsureDefaults(t *testing.T) {
	var c Config
	c.EnsureDefaults()
	def := DefaultConfig()
	assert.Equal(t, def.Tick, c.Tick)
	assert.Equal(t, def.SlowWindow, c.SlowWindow)
	assert.Equal(t, 14.0, c.PhysicalMax)
	assert.Len(t, c.Channels, 3)

	c = Config{
		Tick:        time.Second,
		Resolution:  4,
		PhysicalMin: 2,
		PhysicalMax: 12,
		Channels:    map[sensor.Channel]ChannelConfig{sensor.ChannelPH: {}},
	}
	c.EnsureDefaults()
	assert.Equal(t, time.Second, c.Tick)
	assert.Equal(t, 4, c.Resolution)
	assert.Equal(t, 2.0, c.PhysicalMin)
	assert.Equal(t, ChannelConfig{Window: 5, Scale: adsVoltsPerCount}, c.Channels[sensor.ChannelPH])
}

func TestEnsureDefaultsPartialChannel(t *testing.T) {
	c := Config{Channels: map[sensor.Channel]ChannelConfig{
		sensor.ChannelPH:          {Window: 8},
		sensor.ChannelTemperature: {Window: 3},
		"orp_raw":                 {Offset: 2},
	}}
	c.EnsureDefaults()

	assert.Equal(t, ChannelConfig{Window: 8, Scale: adsVoltsPerCount}, c.Channels[sensor.ChannelPH])
	assert.True(t, c.Channels[sensor.ChannelPH].dropsZero())

	temp := c.Channels[sensor.ChannelTemperature]
	assert.Equal(t, 3, temp.Window)
	assert.Equal(t, 1.0, temp.Scale)
	assert.Equal(t, -10.0, temp.Min)
	assert.Equal(t, 60.0, temp.Max)
	assert.False(t, temp.dropsZero())

	assert.Equal(t, ChannelConfig{Window: 5, Scale: 1, Offset: 2}, c.Channels["orp_raw"])
}
