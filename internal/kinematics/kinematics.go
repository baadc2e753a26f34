// Package kinematics computes the per-tick geometry feeding the AEB
// decision path: separation distance, speeds, closing speed and
// time-to-collision.
//
// All functions are pure. Inputs are taken as reported by the world
// collaborator: degenerate values (NaN positions, negative distances)
// are passed through rather than rejected, matching the contract of
// the system this replaces.
package kinematics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Result is the kinematic state of one tick. Distances in metres,
// velocities in m/s, TTC in seconds.
type Result struct {
	Distance         float64
	EgoSpeed         float64
	LeadSpeed        float64
	RelativeVelocity float64 // EgoSpeed - LeadSpeed; positive means closing
	TTC              float64 // +Inf when there is no closing speed
}

// Compute derives the full kinematic picture from the two actors'
// positions and velocity vectors.
func Compute(egoPos, egoVel, leadPos, leadVel r3.Vec) Result {
	distance := r3.Norm(r3.Sub(egoPos, leadPos))
	egoSpeed := r3.Norm(egoVel)
	leadSpeed := r3.Norm(leadVel)
	rel := egoSpeed - leadSpeed

	return Result{
		Distance:         distance,
		EgoSpeed:         egoSpeed,
		LeadSpeed:        leadSpeed,
		RelativeVelocity: rel,
		TTC:              TTC(distance, rel),
	}
}

// TTC is the projected time until two closing objects reach zero
// separation at the current relative velocity. With no closing speed
// there is no time-to-collision.
func TTC(distance, relativeVelocity float64) float64 {
	if relativeVelocity <= 0 {
		return math.Inf(1)
	}
	return distance / relativeVelocity
}
