package provider

import (
	"time"
)

const defaultForecastDays = 3

// Forecast is the near-term storm outlook derived statistically from one
// parameter snapshot. No additional I/O: everything comes from values
// the cycle already fetched.
type Forecast struct {
	GeneratedAt      time.Time
	SolarWindSpeed   float64
	BzGsm            float64
	DstIndex         float64
	StormProbability float64
	ExpectedKp       int
	Conditions       string
	XrayClass        string
	DisturbanceLevel string
	Predictions      []Prediction
}

// Prediction is one daily outlook entry.
type Prediction struct {
	Date             string
	StormProbability float64
	ExpectedKp       int
	Conditions       string
}

// BuildForecast derives a storm outlook from the snapshot. Probability
// accumulates per driver: elevated solar wind speed, southward Bz, and
// a depressed Dst. An observed dst_index wins; without one the local
// estimate stands in. Returns false when the snapshot carries none of
// the driving parameters.
func BuildForecast(now time.Time, values map[string]float64, days int) (Forecast, bool) {
	speed, hasSpeed := values["solar_wind_speed"]
	bz, hasBz := values["bz_gsm"]
	dst, hasDst := values["dst_index"]
	if !hasDst && hasSpeed && hasBz {
		dst = EstimateDst(speed, bz)
		hasDst = true
	}
	if !hasSpeed && !hasBz && !hasDst {
		return Forecast{}, false
	}
	if days <= 0 {
		days = defaultForecastDays
	}

	probability := 0.1
	if hasSpeed && speed > 600 {
		probability += 0.3
	}
	if hasBz && bz < -10 {
		probability += 0.4
	}
	if hasDst && dst < -50 {
		probability += 0.2
	}
	if probability > 0.95 {
		probability = 0.95
	}

	fc := Forecast{
		GeneratedAt:      now,
		SolarWindSpeed:   speed,
		BzGsm:            bz,
		DstIndex:         dst,
		StormProbability: probability,
		ExpectedKp:       estimateKp(probability),
		Conditions:       conditionDescription(probability),
	}
	if flux, ok := values["xray_flux"]; ok {
		fc.XrayClass = ClassifyXrayFlux(flux)
	}
	if variation, ok := values["magnetometer_variation"]; ok {
		fc.DisturbanceLevel = ClassifyDisturbance(variation)
	}

	for day := 1; day <= days; day++ {
		fc.Predictions = append(fc.Predictions, Prediction{
			Date:             now.AddDate(0, 0, day).Format("2006-01-02"),
			StormProbability: probability,
			ExpectedKp:       fc.ExpectedKp,
			Conditions:       fc.Conditions,
		})
	}
	return fc, true
}

func estimateKp(probability float64) int {
	switch {
	case probability < 0.2:
		return 3
	case probability < 0.4:
		return 4
	case probability < 0.6:
		return 5
	case probability < 0.8:
		return 6
	default:
		return 7
	}
}

func conditionDescription(probability float64) string {
	switch {
	case probability < 0.2:
		return "Quiet to unsettled"
	case probability < 0.4:
		return "Active conditions likely"
	case probability < 0.6:
		return "Minor storm possible"
	case probability < 0.8:
		return "Moderate storm likely"
	default:
		return "Strong storm expected"
	}
}
