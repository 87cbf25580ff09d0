// Package care turns a moisture reading into a verdict for a plant.
package care

const (
	StatusDanger  = "Danger"
	StatusWarning = "Warning"
	StatusOptimal = "Optimal"

	ColorRed    = "red"
	ColorOrange = "orange"
	ColorGreen  = "green"
)

type Evaluation struct {
	Status  string `json:"status"`
	Color   string `json:"color"`
	Icon    string `json:"icon"`
	Message string `json:"message"`
}

// Zone is a moisture band between two bounds, in percent.
type Zone struct {
	From  float64
	To    float64
	Color string
}

// band factors relative to the ideal moisture
const (
	critDry = 0.6
	dry     = 0.8
	wet     = 1.2
	critWet = 1.4
)

func Evaluate(threshold int, moisture float64) Evaluation {
	t := float64(threshold)
	switch {
	case moisture < t*critDry:
		return Evaluation{StatusDanger, ColorRed, "😱", "SOS! Dangerously dry - needs immediate watering!"}
	case moisture < t*dry:
		return Evaluation{StatusWarning, ColorOrange, "🤔", "Getting dry - consider watering soon"}
	case moisture <= t*wet:
		return Evaluation{StatusOptimal, ColorGreen, "🥳", "Optimal moisture level - perfect hydration!"}
	case moisture <= t*critWet:
		return Evaluation{StatusWarning, ColorOrange, "😬", "Too wet - reduce watering"}
	default:
		return Evaluation{StatusDanger, ColorRed, "🆘", "Waterlogged - check drainage immediately!"}
	}
}

// Zones returns the five bands of Evaluate from 0 to 100 percent. Bands
// that start above 100 are dropped.
func Zones(threshold int) []Zone {
	t := float64(threshold)
	bounds := []float64{0, t * critDry, t * dry, t * wet, t * critWet, 100}
	colors := []string{ColorRed, ColorOrange, ColorGreen, ColorOrange, ColorRed}
	zones := make([]Zone, 0, len(colors))
	for i, c := range colors {
		from, to := bounds[i], bounds[i+1]
		if from >= 100 {
			break
		}
		if to > 100 || i == len(colors)-1 {
			to = 100
		}
		zones = append(zones, Zone{From: from, To: to, Color: c})
	}
	return zones
}
