package world

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Scenario describes the initial geometry and the crude longitudinal
// dynamics of the built-in world. The defaults reproduce the crossing
// setup of the reference scenario: the ego vehicle approaches along +Y
// with the cyclist 63 m ahead.
type Scenario struct {
	EgoStart  r3.Vec
	LeadStart r3.Vec
	Timestep  float64 // seconds of simulated time per Step

	// Point-mass actuator response, m/s² at full command.
	EgoAccel   float64
	EgoBrake   float64
	LeadAccel  float64
	LeadBrake  float64
	EgoTopVel  float64 // m/s
	LeadTopVel float64 // m/s
}

// DefaultScenario returns the car-to-cyclist crossing geometry.
func DefaultScenario() Scenario {
	return Scenario{
		EgoStart:   r3.Vec{X: 8, Y: -80, Z: 0.3},
		LeadStart:  r3.Vec{X: 8, Y: -17, Z: 0.3},
		Timestep:   0.05,
		EgoAccel:   4.0,
		EgoBrake:   8.0,
		LeadAccel:  1.5,
		LeadBrake:  4.0,
		EgoTopVel:  16.0,
		LeadTopVel: 6.0,
	}
}

// KinematicWorld is a deterministic in-process World. Both actors move
// along +Y with constant acceleration within a timestep; throttle and
// brake commands map linearly to acceleration. It stands in for the
// external physics simulator during dev runs and tests.
type KinematicWorld struct {
	scenario Scenario

	ego    pointMass
	lead   pointMass
	closed bool
}

type pointMass struct {
	pos     r3.Vec
	vel     float64 // scalar speed along +Y
	control Control
	accel   float64
	brake   float64
	topVel  float64
}

// NewKinematicWorld builds the world at the scenario's initial state,
// both actors at rest.
func NewKinematicWorld(s Scenario) *KinematicWorld {
	if s.Timestep <= 0 {
		s.Timestep = DefaultScenario().Timestep
	}
	return &KinematicWorld{
		scenario: s,
		ego:      pointMass{pos: s.EgoStart, accel: s.EgoAccel, brake: s.EgoBrake, topVel: s.EgoTopVel},
		lead:     pointMass{pos: s.LeadStart, accel: s.LeadAccel, brake: s.LeadBrake, topVel: s.LeadTopVel},
	}
}

func (w *KinematicWorld) EgoState() (ActorState, error) {
	if w.closed {
		return ActorState{}, ErrUnavailable
	}
	return w.ego.state(), nil
}

func (w *KinematicWorld) LeadState() (ActorState, error) {
	if w.closed {
		return ActorState{}, ErrUnavailable
	}
	return w.lead.state(), nil
}

func (w *KinematicWorld) ApplyEgoControl(c Control) error {
	if w.closed {
		return ErrUnavailable
	}
	w.ego.control = c
	return nil
}

func (w *KinematicWorld) ApplyLeadControl(c Control) error {
	if w.closed {
		return ErrUnavailable
	}
	w.lead.control = c
	return nil
}

// Step integrates both actors over one timestep using the most recent
// controls.
func (w *KinematicWorld) Step() error {
	if w.closed {
		return ErrUnavailable
	}
	w.ego.step(w.scenario.Timestep)
	w.lead.step(w.scenario.Timestep)
	return nil
}

func (w *KinematicWorld) Close() error {
	w.closed = true
	return nil
}

func (p pointMass) state() ActorState {
	return ActorState{Position: p.pos, Velocity: r3.Vec{Y: p.vel}}
}

// step applies constant acceleration over dt, clamping speed to
// [0, topVel]. Distance uses the trapezoidal v-average so a mid-step
// stop does not overshoot backwards.
func (p *pointMass) step(dt float64) {
	a := p.control.Throttle*p.accel - p.control.Brake*p.brake
	v0 := p.vel
	v1 := math.Min(p.topVel, math.Max(0, v0+a*dt))
	p.pos.Y += (v0 + v1) / 2 * dt
	p.vel = v1
}
