// Package units provides speed-unit conversion and display formatting
// for the HUD and run reports.
package units

import (
	"fmt"
	"math"
)

// Unit constants. Telemetry and the run log always carry m/s; display
// surfaces convert on the way out.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
)

// ValidUnits contains all valid display unit values.
var ValidUnits = []string{MPS, MPH, KMPH}

// IsValid checks if the given unit is a supported display unit.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed in m/s to the target display units.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694
	case KMPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// FormatTTC renders a time-to-collision for display. An infinite TTC
// (no closing speed) shows as the infinity sign, matching the HUD of
// the reference scenario.
func FormatTTC(ttc float64) string {
	if math.IsInf(ttc, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2f s", ttc)
}
