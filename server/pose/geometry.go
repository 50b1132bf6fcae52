package pose

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Angle returns the unsigned angle in degrees at vertex b formed by the rays
// b->a and b->c. The result is always in [0, 180].
func Angle(a, b, c r2.Vec) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(radians * 180.0 / math.Pi)

	if angle > 180.0 {
		angle = 360.0 - angle
	}

	return angle
}

// FacingRight reports whether the subject faces the right side of the frame.
//
// It only compares the ankle x coordinates, so it is a 2D projection heuristic
// rather than a real facing estimate: a subject square to the camera, or with
// crossed feet, is classified arbitrarily.
func FacingRight(ankleRight, ankleLeft r2.Vec) bool {
	return ankleRight.X < ankleLeft.X
}

// DirectionalAngle returns the direction of q-p measured from the horizontal,
// in degrees within [0, 360).
func DirectionalAngle(p, q r2.Vec) float64 {
	angle := math.Atan2(q.Y-p.Y, q.X-p.X) * 180.0 / math.Pi

	angle = math.Mod(angle, 360.0)
	if angle < 0 {
		angle += 360.0
	}
	// -tiny + 360 rounds to 360
	if angle >= 360.0 {
		angle = 0
	}

	return angle
}

// AlignmentDiff returns the smaller difference between two directions, in [0, 180].
func AlignmentDiff(a, b float64) float64 {
	diff := math.Abs(a - b)
	if diff > 180.0 {
		diff = 360.0 - diff
	}
	return diff
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b r2.Vec) r2.Vec {
	return r2.Scale(0.5, r2.Add(a, b))
}
