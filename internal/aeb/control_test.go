package aeb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crosswalk-data/aeb.report/internal/telemetry"
	"github.com/crosswalk-data/aeb.report/internal/world"
)

func TestEgoHeldDuringWarmup(t *testing.T) {
	t.Parallel()

	// Full brake before the scenario starts, whatever the decision says.
	for _, state := range []State{Nominal, Warning, EmergencyBraking, CollisionLatched} {
		ctrl := EgoControl(state, telemetry.CommandFrame{Deceleration: 0.3}, 1.5, 2.0)
		assert.Equal(t, world.Control{Brake: 1}, ctrl, "state %v", state)
	}
}

func TestEmergencyStatesForceFullStop(t *testing.T) {
	t.Parallel()

	for _, state := range []State{EmergencyBraking, CollisionLatched} {
		ctrl := EgoControl(state, telemetry.CommandFrame{Deceleration: 0.2}, 3.0, 2.0)
		assert.Equal(t, world.Control{Throttle: 0, Brake: 1}, ctrl, "state %v", state)
	}
}

func TestServiceDrivingLaw(t *testing.T) {
	t.Parallel()

	cases := []struct {
		decel           float64
		throttle, brake float64
	}{
		{0.0, 0.6, 0.0},
		{0.3, 0.6, 0.3},
		{0.8, 0.6, 0.8},
		{1.0, 0.6, 0.8}, // brake saturates at the service cap
	}
	for _, c := range cases {
		ctrl := EgoControl(Warning, telemetry.CommandFrame{Deceleration: c.decel}, 5.0, 2.0)
		assert.InDelta(t, c.throttle, ctrl.Throttle, 1e-12, "decel %v", c.decel)
		assert.InDelta(t, c.brake, ctrl.Brake, 1e-12, "decel %v", c.decel)
		assert.Equal(t, 0.0, ctrl.Steer)
	}
}

func TestLeadOpenLoopProfile(t *testing.T) {
	t.Parallel()

	assert.Equal(t, world.Control{Brake: 1}, LeadControl(0.0, 2.0))
	assert.Equal(t, world.Control{Brake: 1}, LeadControl(2.0, 2.0))
	assert.Equal(t, world.Control{Throttle: 0.4}, LeadControl(2.05, 2.0))
	assert.Equal(t, world.Control{Throttle: 0.4}, LeadControl(60.0, 2.0))
}
