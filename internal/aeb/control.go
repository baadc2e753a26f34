package aeb

import (
	"github.com/crosswalk-data/aeb.report/internal/telemetry"
	"github.com/crosswalk-data/aeb.report/internal/world"
)

// Actuator mapping constants. The throttle law max(minThrottle,
// baseThrottle-deceleration) and the maxServiceBrake cap reproduce the
// reference vehicle's wet-road tuning exactly, including its floor of
// 0.6 throttle in non-emergency driving.
const (
	baseThrottle    = 0.5
	minThrottle     = 0.6
	maxServiceBrake = 0.8
	leadThrottle    = 0.4
)

// EgoControl maps the resolved decision to the ego actuator command.
// Before warmup seconds of simulated time the vehicle is held at full
// brake regardless of decision (the scenario has not started); after
// that, emergency states force a full stop and everything else derives
// from the commanded deceleration.
func EgoControl(state State, cmd telemetry.CommandFrame, simTime, warmup float64) world.Control {
	if simTime <= warmup {
		return world.Control{Brake: 1}
	}
	if state == EmergencyBraking || state == CollisionLatched {
		return world.Control{Brake: 1}
	}
	return world.Control{
		Throttle: clamp01(max(minThrottle, baseThrottle-cmd.Deceleration)),
		Brake:    clamp01(min(maxServiceBrake, cmd.Deceleration)),
	}
}

// LeadControl is the cyclist's open-loop profile: braked to a stop
// until warmup, then constant partial throttle across the junction. It
// is independent of the decision engine.
func LeadControl(simTime, warmup float64) world.Control {
	if simTime <= warmup {
		return world.Control{Brake: 1}
	}
	return world.Control{Throttle: leadThrottle}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
