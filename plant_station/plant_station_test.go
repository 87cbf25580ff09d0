package plant_station

import (
	"errors"
	"testing"
	"time"

	"github.com/evkuzin/planthealth/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

const addr = 0x36

func seesawOps(ops ...i2ctest.IO) []i2ctest.IO {
	return append([]i2ctest.IO{
		{Addr: addr, W: []byte{0x00, 0x7F, 0xFF}},
		{Addr: addr, W: []byte{0x00, 0x01}},
		{Addr: addr, R: []byte{0x55}},
	}, ops...)
}

func newTestSeesaw(t *testing.T, bus *i2ctest.Playback) *Seesaw {
	t.Helper()
	opts := DefaultSeesawOpts
	opts.Delay = 0
	opts.ResetDelay = 0
	s, err := NewSeesaw(bus, &opts)
	require.NoError(t, err)
	return s
}

func TestMoisturePercent(t *testing.T) {
	assert.Equal(t, 0.0, MoisturePercent(150, 200, 600))
	assert.Equal(t, 0.0, MoisturePercent(200, 200, 600))
	assert.Equal(t, 50.0, MoisturePercent(400, 200, 600))
	assert.Equal(t, 25.0, MoisturePercent(300, 200, 600))
	assert.Equal(t, 100.0, MoisturePercent(1017, 200, 600))
	assert.Equal(t, 0.0, MoisturePercent(300, 200, 200))
}

func TestVoltagePercent(t *testing.T) {
	assert.Equal(t, 0.0, VoltagePercent(3.0, 2.8, 1.2))
	assert.Equal(t, 50.0, VoltagePercent(2.0, 2.8, 1.2))
	assert.Equal(t, 100.0, VoltagePercent(1.0, 2.8, 1.2))
	assert.Equal(t, 0.0, VoltagePercent(2.0, 1.2, 1.2))
}

func TestMock(t *testing.T) {
	m := NewMock()
	m.Now = func() time.Time { return time.Unix(1_700_000_013, 0) }
	s, err := m.Sense()
	require.NoError(t, err)
	// 1700000013 mod 20 = 13, mod 5 = 3
	assert.Equal(t, 53.0, s.Moisture)
	assert.Equal(t, 25.0, s.Temperature)
	assert.NoError(t, m.Halt())
}

func TestSeesawSense(t *testing.T) {
	bus := &i2ctest.Playback{
		DontPanic: true,
		Ops: seesawOps(
			i2ctest.IO{Addr: addr, W: []byte{0x0F, 0x10}},
			i2ctest.IO{Addr: addr, R: []byte{0x01, 0x90}},
			i2ctest.IO{Addr: addr, W: []byte{0x00, 0x04}},
			i2ctest.IO{Addr: addr, R: []byte{0x00, 0x16, 0x80, 0x00}},
		),
	}
	s := newTestSeesaw(t, bus)
	assert.Equal(t, "seesaw(SAMD09)@0x36", s.String())

	sample, err := s.Sense()
	require.NoError(t, err)
	assert.Equal(t, 400.0, sample.Raw)
	assert.Equal(t, 50.0, sample.Moisture)
	assert.Equal(t, 22.5, sample.Temperature)
	assert.NoError(t, bus.Close())
}

func TestSeesawTemperatureMasksTopBits(t *testing.T) {
	bus := &i2ctest.Playback{
		DontPanic: true,
		Ops: seesawOps(
			i2ctest.IO{Addr: addr, W: []byte{0x00, 0x04}},
			i2ctest.IO{Addr: addr, R: []byte{0xC0, 0x19, 0x00, 0x00}},
		),
	}
	s := newTestSeesaw(t, bus)
	temp, err := s.Temperature()
	require.NoError(t, err)
	assert.Equal(t, 25.0, temp)
}

func TestSeesawMoistureRetries(t *testing.T) {
	bus := &i2ctest.Playback{
		DontPanic: true,
		Ops: seesawOps(
			i2ctest.IO{Addr: addr, W: []byte{0x0F, 0x10}},
			i2ctest.IO{Addr: addr, R: []byte{0xFF, 0xFF}},
			i2ctest.IO{Addr: addr, W: []byte{0x0F, 0x10}},
			i2ctest.IO{Addr: addr, R: []byte{0x02, 0x58}},
		),
	}
	s := newTestSeesaw(t, bus)
	v, err := s.Moisture()
	require.NoError(t, err)
	assert.Equal(t, 600, v)
	assert.NoError(t, bus.Close())
}

func TestSeesawMoistureGivesUp(t *testing.T) {
	var ops []i2ctest.IO
	for i := 0; i < 3; i++ {
		ops = append(ops,
			i2ctest.IO{Addr: addr, W: []byte{0x0F, 0x10}},
			i2ctest.IO{Addr: addr, R: []byte{0xFF, 0xFF}},
		)
	}
	bus := &i2ctest.Playback{DontPanic: true, Ops: seesawOps(ops...)}
	s := newTestSeesaw(t, bus)
	_, err := s.Moisture()
	assert.ErrorIs(t, err, ErrInvalidMoisture)
	assert.NoError(t, bus.Close())
}

func TestSeesawRejectsUnknownChip(t *testing.T) {
	bus := &i2ctest.Playback{
		DontPanic: true,
		Ops: []i2ctest.IO{
			{Addr: addr, W: []byte{0x00, 0x7F, 0xFF}},
			{Addr: addr, W: []byte{0x00, 0x01}},
			{Addr: addr, R: []byte{0x42}},
		},
	}
	opts := DefaultSeesawOpts
	opts.Delay = 0
	opts.ResetDelay = 0
	_, err := NewSeesaw(bus, &opts)
	assert.ErrorContains(t, err, "0x42")
}

func TestSeesawResetFails(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	opts := DefaultSeesawOpts
	opts.Delay = 0
	opts.ResetDelay = 0
	_, err := NewSeesaw(bus, &opts)
	assert.ErrorContains(t, err, "cannot reset seesaw")
}

type fakePin struct {
	sample analog.Sample
	err    error
}

func (f *fakePin) Read() (analog.Sample, error) { return f.sample, f.err }
func (f *fakePin) Halt() error                  { return nil }

type fakeEnv struct{ temp physic.Temperature }

func (f *fakeEnv) Sense(env *physic.Env) error {
	env.Temperature = f.temp
	return nil
}
func (f *fakeEnv) Halt() error { return nil }

func TestAnalogSense(t *testing.T) {
	a := &Analog{
		pin:  &fakePin{sample: analog.Sample{V: 2 * physic.Volt, Raw: 16000}},
		env:  &fakeEnv{temp: physic.ZeroCelsius + 21*physic.Kelvin + 500*physic.MilliKelvin},
		opts: AnalogOpts{DryVolts: 2.8, WetVolts: 1.2},
	}
	s, err := a.Sense()
	require.NoError(t, err)
	assert.Equal(t, 50.0, s.Moisture)
	assert.Equal(t, 16000.0, s.Raw)
	assert.Equal(t, 21.5, s.Temperature)
	assert.NoError(t, a.Halt())

	a.pin = &fakePin{err: errors.New("bus busy")}
	_, err = a.Sense()
	assert.ErrorContains(t, err, "bus busy")
}

func TestPeripheralInitialisationMock(t *testing.T) {
	probe, bus, err := PeripheralInitialisation(&config.Sensor{Driver: config.SensorMock}, logrus.New())
	require.NoError(t, err)
	assert.Nil(t, bus)
	assert.IsType(t, &Mock{}, probe)
}

func TestNewProbeUnknownDriver(t *testing.T) {
	_, err := NewProbe(&i2ctest.Playback{DontPanic: true}, &config.Sensor{Driver: "lidar"})
	assert.Error(t, err)
}
