package aeb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswalk-data/aeb.report/internal/kinematics"
	"github.com/crosswalk-data/aeb.report/internal/telemetry"
)

func kin(distance, rel float64) kinematics.Result {
	return kinematics.Result{
		Distance:         distance,
		RelativeVelocity: rel,
		TTC:              kinematics.TTC(distance, rel),
	}
}

func TestRemoteCommandIsAuthoritative(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultThresholds())

	t.Run("quiet command means nominal even when close", func(t *testing.T) {
		// Locally computed TTC would scream here; connected mode
		// defers to the controller.
		out := e.Evaluate(kin(5, 4), telemetry.CommandFrame{}, false)
		assert.Equal(t, Nominal, out.State)
	})

	t.Run("aeb flag maps to warning", func(t *testing.T) {
		out := e.Evaluate(kin(100, 0), telemetry.CommandFrame{AEBActive: true}, false)
		assert.Equal(t, Warning, out.State)
	})

	t.Run("fcw flag maps to warning", func(t *testing.T) {
		out := e.Evaluate(kin(100, 0), telemetry.CommandFrame{ForwardCollisionWarning: true}, false)
		assert.Equal(t, Warning, out.State)
	})

	t.Run("emergency brake wins", func(t *testing.T) {
		out := e.Evaluate(kin(100, 0), telemetry.CommandFrame{EmergencyBrake: true, AEBActive: true}, false)
		assert.Equal(t, EmergencyBraking, out.State)
	})

	t.Run("stop request wins", func(t *testing.T) {
		out := e.Evaluate(kin(100, 0), telemetry.CommandFrame{StopRequested: true}, false)
		assert.Equal(t, EmergencyBraking, out.State)
	})
}

func TestFallbackThresholds(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultThresholds())

	t.Run("outside warn distance stays nominal", func(t *testing.T) {
		out := e.Evaluate(kin(20, 5), telemetry.CommandFrame{}, true)
		assert.Equal(t, Nominal, out.State)
		assert.False(t, out.Command.AEBActive)
	})

	t.Run("no closing speed stays nominal at any distance", func(t *testing.T) {
		out := e.Evaluate(kin(6, -1), telemetry.CommandFrame{}, true)
		assert.Equal(t, Nominal, out.State)
	})

	t.Run("inside warn distance while closing warns", func(t *testing.T) {
		out := e.Evaluate(kin(12, 2), telemetry.CommandFrame{}, true)
		assert.Equal(t, Warning, out.State)
		assert.True(t, out.Command.AEBActive)
		assert.False(t, out.Command.EmergencyBrake)
	})

	t.Run("worked scenario at 6m closing 2m/s", func(t *testing.T) {
		// distance=6, rel=2: warning flags set AND emergency braking
		// with the saturated deceleration min(0.8, 8/6).
		out := e.Evaluate(kin(6, 2), telemetry.CommandFrame{}, true)
		assert.Equal(t, EmergencyBraking, out.State)
		assert.True(t, out.Command.AEBActive)
		assert.True(t, out.Command.EmergencyBrake)
		assert.Equal(t, 0.8, out.Command.Deceleration)
	})

	t.Run("remote flags ignored while degraded", func(t *testing.T) {
		out := e.Evaluate(kin(100, 0), telemetry.CommandFrame{EmergencyBrake: true}, true)
		assert.Equal(t, Nominal, out.State)
	})
}

func TestFallbackDecelerationMonotonic(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultThresholds())

	// Sweeping distance down from 15m to near zero at fixed closing
	// speed, deceleration is non-decreasing and never exceeds 0.8.
	prev := 0.0
	for d := 14.9; d > 0.01; d -= 0.1 {
		out := e.Evaluate(kin(d, 3), telemetry.CommandFrame{}, true)
		decel := out.Command.Deceleration
		assert.GreaterOrEqual(t, decel, prev, "distance %.2f", d)
		assert.LessOrEqual(t, decel, 0.8, "distance %.2f", d)
		prev = decel
		if d < 2.5 {
			// Latch territory; the state pins but the law still holds.
			assert.Equal(t, CollisionLatched, out.State)
		}
	}
}

func TestCollisionLatchIsSticky(t *testing.T) {
	t.Parallel()

	for _, degraded := range []bool{true, false} {
		e := NewEngine(DefaultThresholds())

		out := e.Evaluate(kin(2.4, 1), telemetry.CommandFrame{}, degraded)
		require.Equal(t, CollisionLatched, out.State, "degraded=%v", degraded)
		require.True(t, e.CollisionLatched())

		// Distance recovering does not clear the latch.
		for _, d := range []float64{5, 50, 1e4} {
			out = e.Evaluate(kin(d, -3), telemetry.CommandFrame{}, degraded)
			assert.Equal(t, CollisionLatched, out.State, "degraded=%v distance=%v", degraded, d)
		}
	}
}

func TestCollisionLatchOverridesRemote(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultThresholds())
	e.Evaluate(kin(2.0, 1), telemetry.CommandFrame{}, false)

	// A controller insisting everything is fine cannot unlatch.
	out := e.Evaluate(kin(30, 0), telemetry.CommandFrame{}, false)
	assert.Equal(t, CollisionLatched, out.State)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "nominal", Nominal.String())
	assert.Equal(t, "warning", Warning.String())
	assert.Equal(t, "emergency-braking", EmergencyBraking.String())
	assert.Equal(t, "collision-latched", CollisionLatched.String())
}
