package plant_station

import (
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/devices/v3/bmxx80"
)

// AnalogOpts configures a capacitive probe wired to an ADS1115 converter.
type AnalogOpts struct {
	// DryVolts and WetVolts are the probe output in air and in water.
	DryVolts float64
	WetVolts float64
	// EnvAddress is the address of an optional bme280/bmp280 used for
	// temperature. Zero disables it.
	EnvAddress uint16
}

type adcPin interface {
	Read() (analog.Sample, error)
	Halt() error
}

type envSensor interface {
	Sense(env *physic.Env) error
	Halt() error
}

// Analog reads moisture from ADS1115 channel 0 and temperature from a bmxx80.
type Analog struct {
	pin  adcPin
	env  envSensor
	opts AnalogOpts
}

func NewAnalog(bus i2c.Bus, opts *AnalogOpts) (*Analog, error) {
	adc, err := ads1x15.NewADS1115(bus, &ads1x15.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("cannot open ads1115: %w", err)
	}
	pin, err := adc.PinForChannel(ads1x15.Channel0, 5*physic.Volt, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("cannot open ads1115 channel 0: %w", err)
	}
	a := &Analog{pin: pin, opts: *opts}
	if opts.EnvAddress != 0 {
		env, err := bmxx80.NewI2C(bus, opts.EnvAddress, &bmxx80.DefaultOpts)
		if err != nil {
			_ = pin.Halt()
			return nil, fmt.Errorf("cannot open bmxx80: %w", err)
		}
		a.env = env
	}
	return a, nil
}

func (a *Analog) Sense() (Sample, error) {
	s, err := a.pin.Read()
	if err != nil {
		return Sample{}, fmt.Errorf("cannot read moisture: %w", err)
	}
	volts := float64(s.V) / float64(physic.Volt)
	sample := Sample{
		Moisture: VoltagePercent(volts, a.opts.DryVolts, a.opts.WetVolts),
		Raw:      float64(s.Raw),
	}
	if a.env != nil {
		var e physic.Env
		if err := a.env.Sense(&e); err != nil {
			return Sample{}, fmt.Errorf("cannot read temperature: %w", err)
		}
		sample.Temperature = round1(float64(e.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin))
	}
	return sample, nil
}

func (a *Analog) Halt() error {
	err := a.pin.Halt()
	if a.env != nil {
		if envErr := a.env.Halt(); err == nil {
			err = envErr
		}
	}
	return err
}
