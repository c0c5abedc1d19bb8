package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRelay(t *testing.T) {
	assert.Equal(t, RelayOn, NormalizeRelay(" on "))
	assert.Equal(t, RelayOn, NormalizeRelay("ON"))
	assert.Equal(t, RelayOff, NormalizeRelay("off"))
	assert.Equal(t, RelayOff, NormalizeRelay(""))
	assert.Equal(t, RelayOff, NormalizeRelay("true"))
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]DeviceStatus{
		"Available": StatusAvailable,
		"charging":  StatusOccupied,
		"OCCUPIED":  StatusOccupied,
		"paused":    StatusPaused,
		" offline ": StatusOffline,
		"":          StatusUnknown,
		"weird":     StatusUnknown,
	}
	for in, want := range cases {
		assert.Equalf(t, want, NormalizeStatus(in), "input %q", in)
	}
}

func TestNewSampleCoercesMalformedNumbers(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(-1)
	v := 229.5
	s := NewSample(Reading{Voltage: &v, Current: &nan, Energy: &inf}, time.Now())

	assert.Equal(t, 229.5, s.Voltage)
	assert.Zero(t, s.Current)
	assert.False(t, s.HasEnergy)
	assert.Zero(t, s.Power)
}

func TestNewSampleDerivesPower(t *testing.T) {
	v, c := 230.0, 10.0
	s := NewSample(Reading{Voltage: &v, Current: &c}, time.Now())
	assert.Equal(t, 2300.0, s.Power)

	p := 2150.0
	s = NewSample(Reading{Voltage: &v, Current: &c, Power: &p}, time.Now())
	assert.Equal(t, 2150.0, s.Power)
}
