package plant_station

import (
	"fmt"

	"github.com/evkuzin/planthealth/config"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeripheralInitialisation opens the probe configured in sensor.driver. The
// returned bus is nil for the mock probe, otherwise the caller closes it
// after halting the probe.
func PeripheralInitialisation(conf *config.Sensor, logger *logrus.Logger) (Probe, i2c.BusCloser, error) {
	if conf.Driver == config.SensorMock {
		logger.Infof("using mock probe, no hardware access")
		return NewMock(), nil, nil
	}

	// Make sure peripheral is initialized.
	state, err := host.Init()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	logger.Debugf("Using drivers:")
	for _, driver := range state.Loaded {
		logger.Debugf("- %s", driver)
	}

	// Prints the driver that were skipped as irrelevant on the platform.
	logger.Debugf("Drivers skipped:")
	for _, failure := range state.Skipped {
		logger.Debugf("- %s: %s", failure.D, failure.Err)
	}

	// Having drivers failing to load may not require process termination. It
	// is possible to continue to run in partial failure mode.
	logger.Debugf("Drivers failed to load:")
	for _, failure := range state.Failed {
		logger.Warnf("- %s: %v", failure.D, failure.Err)
	}

	bus, err := i2creg.Open(conf.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open a bus: %w", err)
	}
	logger.Debugf("I2C bus open call successful. Got: %v", bus.String())

	probe, err := NewProbe(bus, conf)
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return probe, bus, nil
}

// NewProbe builds the hardware probe for conf.Driver on an already opened bus.
func NewProbe(bus i2c.Bus, conf *config.Sensor) (Probe, error) {
	switch conf.Driver {
	case config.SensorSeesaw:
		opts := DefaultSeesawOpts
		opts.Addr = conf.Address
		opts.Dry = conf.DryValue
		opts.Wet = conf.WetValue
		return NewSeesaw(bus, &opts)
	case config.SensorAnalog:
		return NewAnalog(bus, &AnalogOpts{
			DryVolts:   conf.DryVolts,
			WetVolts:   conf.WetVolts,
			EnvAddress: conf.EnvAddress,
		})
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", conf.Driver)
	}
}
