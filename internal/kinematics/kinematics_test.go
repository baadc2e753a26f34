package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestTTCNoClosingSpeed(t *testing.T) {
	t.Parallel()

	// For any relative velocity <= 0, TTC is +Inf independent of distance.
	for _, rel := range []float64{0, -0.001, -2, -100} {
		for _, dist := range []float64{0, 0.5, 6, 1e6} {
			assert.True(t, math.IsInf(TTC(dist, rel), 1),
				"rel=%v dist=%v", rel, dist)
		}
	}
}

func TestTTCExactDivision(t *testing.T) {
	t.Parallel()

	cases := []struct{ dist, rel float64 }{
		{6, 2},
		{15, 0.5},
		{2.5, 7.3},
		{100, 100},
	}
	for _, c := range cases {
		assert.InDelta(t, c.dist/c.rel, TTC(c.dist, c.rel), 1e-12)
	}
}

func TestComputeEuclideanGeometry(t *testing.T) {
	t.Parallel()

	egoPos := r3.Vec{X: 8, Y: -80, Z: 0.3}
	leadPos := r3.Vec{X: 8, Y: -17, Z: 0.3}
	egoVel := r3.Vec{X: 0, Y: 9, Z: 0}
	leadVel := r3.Vec{X: 3, Y: 0, Z: 4} // norm 5

	res := Compute(egoPos, egoVel, leadPos, leadVel)

	assert.InDelta(t, 63.0, res.Distance, 1e-12)
	assert.InDelta(t, 9.0, res.EgoSpeed, 1e-12)
	assert.InDelta(t, 5.0, res.LeadSpeed, 1e-12)
	assert.InDelta(t, 4.0, res.RelativeVelocity, 1e-12)
	assert.InDelta(t, 63.0/4.0, res.TTC, 1e-12)
}

func TestComputeOpeningGap(t *testing.T) {
	t.Parallel()

	// Lead faster than ego: gap is opening, no TTC.
	res := Compute(
		r3.Vec{}, r3.Vec{Y: 2},
		r3.Vec{Y: 10}, r3.Vec{Y: 6},
	)
	assert.Equal(t, -4.0, res.RelativeVelocity)
	assert.True(t, math.IsInf(res.TTC, 1))
}
