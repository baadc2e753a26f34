package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	t.Parallel()

	if got := ConvertSpeed(10, KMPH); got != 36.0 {
		t.Errorf("10 m/s = %v km/h, want 36", got)
	}
	if got := ConvertSpeed(10, MPH); math.Abs(got-22.3694) > 1e-9 {
		t.Errorf("10 m/s = %v mph, want 22.3694", got)
	}
	if got := ConvertSpeed(10, MPS); got != 10.0 {
		t.Errorf("m/s should pass through, got %v", got)
	}
	if got := ConvertSpeed(10, "furlongs"); got != 10.0 {
		t.Errorf("unknown units should pass through, got %v", got)
	}
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("%q should be valid", u)
		}
	}
	if IsValid("knots") {
		t.Error("knots should not be valid")
	}
}

func TestFormatTTC(t *testing.T) {
	t.Parallel()

	if got := FormatTTC(math.Inf(1)); got != "∞" {
		t.Errorf("infinite TTC rendered as %q", got)
	}
	if got := FormatTTC(3.25); got != "3.25 s" {
		t.Errorf("finite TTC rendered as %q", got)
	}
}
