// Package world defines the narrow contract the bridge has with the
// physics simulator: per-tick reads of actor state, actuator commands
// and a fixed-step advance. The production simulator lives in its own
// process and attaches behind this interface; the package also ships a
// built-in longitudinal point-mass world for dev runs and tests.
package world

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnavailable means the world cannot be stepped or read. It is fatal
// to the whole run; there is no decision loop without a world.
var ErrUnavailable = errors.New("world: unavailable")

// Control is one actuator command. Throttle and Brake are normalised
// to [0,1], Steer to [-1,1].
type Control struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	Steer    float64 `json:"steer"`
}

// ActorState is a per-tick snapshot of one vehicle.
type ActorState struct {
	Position r3.Vec // metres
	Velocity r3.Vec // m/s
}

// World is the simulator surface the step driver drives. All methods
// are called from the single step-loop goroutine, once per tick.
type World interface {
	// EgoState reports the controlled vehicle's state.
	EgoState() (ActorState, error)
	// LeadState reports the crossing target's state.
	LeadState() (ActorState, error)
	// ApplyEgoControl queues the ego actuator command for the next step.
	ApplyEgoControl(Control) error
	// ApplyLeadControl queues the lead actuator command for the next step.
	ApplyLeadControl(Control) error
	// Step advances the physics by one fixed timestep.
	Step() error
	// Close releases simulator resources.
	Close() error
}
