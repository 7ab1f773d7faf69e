// Package units provides shared constants and conversion for speed units
package units

import "strings"

// Unit constants
const (
	MPS   = "mps"
	MPH   = "mph"
	KMPH  = "kmph"
	KPH   = "kph"
	Knots = "knots"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH, Knots}

const (
	mpsPerKnot = 0.514444
	mphPerMPS  = 2.2369362920544
	kphPerMPS  = 3.6
)

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// KnotsToMPS converts a speed over ground reported by NMEA receivers.
func KnotsToMPS(knots float64) float64 {
	return knots * mpsPerKnot
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * mphPerMPS
	case KMPH, KPH:
		return speedMPS * kphPerMPS
	case Knots:
		return speedMPS / mpsPerKnot
	default:
		return speedMPS
	}
}
