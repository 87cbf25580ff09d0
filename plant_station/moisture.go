package plant_station

import "math"

// MoisturePercent converts a raw capacitive value into percent using the
// dry and wet calibration points.
func MoisturePercent(raw, dry, wet int) float64 {
	if wet == dry {
		return 0
	}
	constrained := math.Max(float64(dry), math.Min(float64(wet), float64(raw)))
	return round1((constrained - float64(dry)) / float64(wet-dry) * 100)
}

// VoltagePercent does the same for analog probes, where the output voltage
// drops as the soil gets wetter.
func VoltagePercent(v, dry, wet float64) float64 {
	if wet == dry {
		return 0
	}
	percent := (dry - v) / (dry - wet) * 100
	return round1(math.Max(0, math.Min(100, percent)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
