package plant_station

import (
	"math"
	"time"
)

// Mock generates plausible values without hardware. Moisture oscillates
// between 40 and 60 percent, temperature between 22 and 27 degrees.
type Mock struct {
	Now func() time.Time
}

func NewMock() *Mock {
	return &Mock{Now: time.Now}
}

func (m *Mock) Sense() (Sample, error) {
	t := float64(m.Now().UnixNano()) / float64(time.Second)
	moisture := 40 + math.Mod(t, 20)
	return Sample{
		Moisture:    round1(moisture),
		Temperature: round1(22 + math.Mod(t, 5)),
		Raw:         moisture,
	}, nil
}

func (m *Mock) Halt() error {
	return nil
}
