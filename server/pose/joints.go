package pose

import "gonum.org/v1/gonum/spatial/r2"

// Limbs holds the pixel positions of one side of the body.
type Limbs struct {
	Shoulder r2.Vec
	Elbow    r2.Vec
	Wrist    r2.Vec
	Hip      r2.Vec
	Knee     r2.Vec
	Ankle    r2.Vec
}

// Joints is the pixel-space skeleton of a single image. FacingRight is
// computed once and every front/back selection goes through it. Points holds
// every landmark for skeleton drawing and may be empty.
type Joints struct {
	Right       Limbs
	Left        Limbs
	FacingRight bool
	Height      float64
	Points      []r2.Vec
}

func (j Joints) Front() Limbs {
	if j.FacingRight {
		return j.Right
	}
	return j.Left
}

func (j Joints) Back() Limbs {
	if j.FacingRight {
		return j.Left
	}
	return j.Right
}

func (j Joints) ShoulderMid() r2.Vec {
	return Midpoint(j.Right.Shoulder, j.Left.Shoulder)
}

func (j Joints) HipMid() r2.Vec {
	return Midpoint(j.Right.Hip, j.Left.Hip)
}
