package alerting

import (
	"time"

	"swx-monitor/internal/health"
)

// Category groups threshold rules by the operational domain they guard.
type Category string

const (
	CategorySolar       Category = "solar"
	CategoryGeomagnetic Category = "geomagnetic"
	CategoryRadiation   Category = "radiation"
	CategoryRadio       Category = "radio"
	CategorySatellite   Category = "satellite"
)

// Operator is the comparison applied between observed value and threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

// Criteria is one static threshold rule, immutable after startup.
type Criteria struct {
	ID              string
	Category        Category
	Parameter       string
	Operator        Operator
	Threshold       float64
	Unit            string
	Severity        health.Severity
	CooldownMinutes int
}

// Cooldown returns the rule's suppression interval.
func (c Criteria) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// ActiveAlert is a triggered rule instance. Immutable after creation;
// it ages out of the rolling history rather than being resolved.
type ActiveAlert struct {
	ID              string
	CriteriaID      string
	Category        Category
	Severity        health.Severity
	Parameter       string
	Value           float64
	Threshold       float64
	Unit            string
	Message         string
	TriggeredAt     time.Time
	ExpiresAt       time.Time
	Recommendations []string
}

// DefaultCriteria is the operational threshold table. Values follow NOAA
// SWPC scales: X-ray flux W/m^2 flare classes, Kp/Dst geomagnetic storm
// levels, integral proton flux in pfu, solar wind speed in km/s.
func DefaultCriteria() []Criteria {
	return []Criteria{
		{ID: "xray_m_flare", Category: CategorySolar, Parameter: "xray_flux", Operator: OpGreaterEqual, Threshold: 1e-5, Unit: "W/m^2", Severity: health.SeverityWarning, CooldownMinutes: 30},
		{ID: "xray_x_flare", Category: CategorySolar, Parameter: "xray_flux", Operator: OpGreaterEqual, Threshold: 1e-4, Unit: "W/m^2", Severity: health.SeverityCritical, CooldownMinutes: 60},
		{ID: "kp_storm", Category: CategoryGeomagnetic, Parameter: "kp_index", Operator: OpGreaterEqual, Threshold: 5, Unit: "", Severity: health.SeverityWarning, CooldownMinutes: 60},
		{ID: "kp_severe_storm", Category: CategoryGeomagnetic, Parameter: "kp_index", Operator: OpGreaterEqual, Threshold: 7, Unit: "", Severity: health.SeverityCritical, CooldownMinutes: 60},
		{ID: "bz_southward", Category: CategoryGeomagnetic, Parameter: "bz_gsm", Operator: OpLessEqual, Threshold: -15, Unit: "nT", Severity: health.SeverityError, CooldownMinutes: 60},
		{ID: "dst_storm", Category: CategoryGeomagnetic, Parameter: "dst_index", Operator: OpLess, Threshold: -100, Unit: "nT", Severity: health.SeverityCritical, CooldownMinutes: 120},
		{ID: "proton_event", Category: CategoryRadiation, Parameter: "proton_flux", Operator: OpGreaterEqual, Threshold: 10, Unit: "pfu", Severity: health.SeverityWarning, CooldownMinutes: 60},
		{ID: "proton_storm", Category: CategoryRadiation, Parameter: "proton_flux", Operator: OpGreaterEqual, Threshold: 1000, Unit: "pfu", Severity: health.SeverityCritical, CooldownMinutes: 60},
		{ID: "f107_elevated", Category: CategoryRadio, Parameter: "f10_7", Operator: OpGreaterEqual, Threshold: 250, Unit: "sfu", Severity: health.SeverityInfo, CooldownMinutes: 720},
		{ID: "wind_speed_high", Category: CategorySatellite, Parameter: "solar_wind_speed", Operator: OpGreaterEqual, Threshold: 700, Unit: "km/s", Severity: health.SeverityWarning, CooldownMinutes: 60},
		{ID: "mag_disturbance", Category: CategorySatellite, Parameter: "magnetometer_variation", Operator: OpGreaterEqual, Threshold: 50, Unit: "nT", Severity: health.SeverityError, CooldownMinutes: 60},
	}
}

// recommendationsFor returns the category-specific operator guidance
// attached to a triggered alert.
func recommendationsFor(category Category, severity health.Severity) []string {
	critical := severity == health.SeverityCritical || severity == health.SeverityError

	switch category {
	case CategorySolar:
		recs := []string{"Monitor HF radio communications for degradation"}
		if critical {
			recs = append(recs, "Expect radio blackouts on the sunlit side", "Watch for associated proton events over the next hours")
		}
		return recs
	case CategoryGeomagnetic:
		recs := []string{"Watch GPS accuracy and HF propagation at high latitudes"}
		if critical {
			recs = append(recs, "Notify power grid operators of possible induced currents", "Aurora may be visible at mid latitudes")
		}
		return recs
	case CategoryRadiation:
		recs := []string{"Review radiation exposure for polar flight routes"}
		if critical {
			recs = append(recs, "Postpone extravehicular activity until flux subsides", "Consider safing sensitive satellite instruments")
		}
		return recs
	case CategoryRadio:
		recs := []string{"Verify backup communication channels"}
		if critical {
			recs = append(recs, "Advise aviation of possible HF outages on polar routes")
		}
		return recs
	case CategorySatellite:
		recs := []string{"Monitor spacecraft charging indicators"}
		if critical {
			recs = append(recs, "Increase orbit determination cadence; atmospheric drag may rise", "Consider deferring non-essential manoeuvres")
		}
		return recs
	default:
		return nil
	}
}
