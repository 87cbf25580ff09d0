package plant_station

import (
	"context"

	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/storage"
	"github.com/sirupsen/logrus"
)

// Sample is one measurement taken from a probe.
type Sample struct {
	Moisture    float64
	Temperature float64
	Raw         float64
}

// Probe is a soil sensor able to report moisture and temperature.
type Probe interface {
	Sense() (Sample, error)
	Halt() error
}

// Sink receives every stored reading, e.g. a broker or a time series database.
type Sink interface {
	Name() string
	Send(ctx context.Context, reading *storage.Reading) error
	Close()
}

type PlantStation interface {
	Init(config *config.Config, logger *logrus.Logger) error
	Start(ctx context.Context) error
}
