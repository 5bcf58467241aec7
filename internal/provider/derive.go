package provider

import (
	"fmt"
	"math"
)

// EstimateDst approximates the Dst index from solar wind speed (km/s)
// and the IMF Bz component (nT). Northward Bz yields a quiet baseline;
// southward Bz deepens the estimate with the Burton-style speed scaling.
func EstimateDst(speed, bz float64) float64 {
	if speed <= 0 {
		speed = 400
	}
	if bz >= 0 {
		return -2.0
	}
	return -20.0 * math.Sqrt(speed/400) * math.Abs(bz)
}

// ClassifyXrayFlux maps a long-channel flux (W/m^2) to its flare class.
func ClassifyXrayFlux(flux float64) string {
	switch {
	case flux < 1e-8:
		return "A-class"
	case flux < 1e-7:
		return "B-class"
	case flux < 1e-6:
		return "C-class"
	case flux < 1e-5:
		return "M-class"
	case flux < 1e-4:
		return "X-class"
	default:
		return fmt.Sprintf("X%d-class", int(flux/1e-4))
	}
}

// ClassifyDisturbance maps a magnetometer variation (nT) to a
// qualitative disturbance level.
func ClassifyDisturbance(variation float64) string {
	switch {
	case variation < 10:
		return "Quiet"
	case variation < 20:
		return "Unsettled"
	case variation < 30:
		return "Active"
	case variation < 50:
		return "Minor Storm"
	default:
		return "Major Storm"
	}
}
