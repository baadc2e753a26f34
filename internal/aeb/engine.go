// Package aeb holds the collision-avoidance decision path: the per-tick
// state machine that resolves an authoritative braking decision from
// either the remote controller's command or a locally synthesised
// fallback, and the mapping from that decision to actuator commands.
package aeb

import (
	"fmt"

	"github.com/crosswalk-data/aeb.report/internal/kinematics"
	"github.com/crosswalk-data/aeb.report/internal/monitoring"
	"github.com/crosswalk-data/aeb.report/internal/telemetry"
)

// State is the engine's per-tick decision state. CollisionLatched is
// terminal for the run.
type State int

const (
	Nominal State = iota
	Warning
	EmergencyBraking
	CollisionLatched
)

func (s State) String() string {
	switch s {
	case Nominal:
		return "nominal"
	case Warning:
		return "warning"
	case EmergencyBraking:
		return "emergency-braking"
	case CollisionLatched:
		return "collision-latched"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Thresholds are the distance laws of the local fallback policy.
type Thresholds struct {
	WarnDistance      float64 // m; below this with closing speed, warn
	BrakeDistance     float64 // m; below this, emergency-brake
	CollisionDistance float64 // m; below this, latch the collision flag
	BrakeReference    float64 // m; numerator of the inverse-distance law
	MaxDeceleration   float64 // saturation of the synthesised deceleration
}

// DefaultThresholds returns the crossing-scenario tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnDistance:      15.0,
		BrakeDistance:     8.0,
		CollisionDistance: 2.5,
		BrakeReference:    8.0,
		MaxDeceleration:   0.8,
	}
}

// Outcome is the one decision produced every tick. Command is the
// resolved frame that drove the decision, remote or synthesised, so
// downstream consumers are oblivious to its origin.
type Outcome struct {
	State   State
	Command telemetry.CommandFrame
}

// Engine is the AEB state machine. The collision flag is sticky: once
// the separation drops below the collision threshold it stays set for
// the remainder of the run, whatever the distance does afterwards.
// Driven only from the step-loop goroutine; no locking.
type Engine struct {
	thresholds Thresholds
	collision  bool
}

// NewEngine builds an engine with the given fallback thresholds.
func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// CollisionLatched reports whether a collision has been observed this run.
func (e *Engine) CollisionLatched() bool { return e.collision }

// Evaluate resolves this tick's decision. When the link is healthy the
// remote command is authoritative and locally computed TTC is ignored;
// when degraded an equivalent command is synthesised from the distance
// thresholds. The collision latch applies in both modes.
func (e *Engine) Evaluate(kin kinematics.Result, remote telemetry.CommandFrame, degraded bool) Outcome {
	if kin.Distance < e.thresholds.CollisionDistance && !e.collision {
		e.collision = true
		monitoring.Logf("aeb: collision detected at %.2fm, latching for the run", kin.Distance)
	}

	cmd := remote
	if degraded {
		cmd = e.synthesize(kin)
	}

	state := Nominal
	switch {
	case e.collision:
		state = CollisionLatched
	case cmd.EmergencyBrake || cmd.StopRequested:
		state = EmergencyBraking
	case cmd.AEBActive || cmd.ForwardCollisionWarning:
		state = Warning
	}

	return Outcome{State: state, Command: cmd}
}

// synthesize is the local fallback policy: warn inside WarnDistance
// while closing, emergency-brake inside BrakeDistance with a
// saturating inverse-distance deceleration. Braking hardens as the
// obstacle nears but caps at MaxDeceleration to stay short of wheel
// lock-up.
func (e *Engine) synthesize(kin kinematics.Result) telemetry.CommandFrame {
	var cmd telemetry.CommandFrame
	t := e.thresholds

	if kin.Distance < t.WarnDistance && kin.RelativeVelocity > 0 {
		cmd.AEBActive = true
		if kin.Distance < t.BrakeDistance {
			cmd.EmergencyBrake = true
			cmd.Deceleration = min(t.MaxDeceleration, t.BrakeReference/kin.Distance)
		}
	}
	return cmd
}
