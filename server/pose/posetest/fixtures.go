// Package posetest builds synthetic landmark sets with known joint angles.
package posetest

import (
	"math"

	"github.com/san-kum/fencing-cv/server/pose"
	"gonum.org/v1/gonum/spatial/r2"
)

// Size is the width and height, in pixels, of the image the fixtures assume.
const Size = 1000

// Stance describes the angles a fixture should produce.
type Stance struct {
	FrontKnee  float64
	BackKnee   float64
	Spine      float64
	FrontElbow float64
	// ForearmRise tilts the front forearm upwards from the horizontal.
	ForearmRise float64
	// ArmLegDiff rotates the back arm away from the back thigh direction.
	ArmLegDiff float64
	FacingLeft bool
}

// EnGarde is a stance inside every en garde tolerance.
func EnGarde() Stance {
	return Stance{FrontKnee: 50, BackKnee: 50, Spine: 0, FrontElbow: 90}
}

// Lunge is a stance inside every lunge tolerance.
func Lunge() Stance {
	return Stance{FrontKnee: 85, BackKnee: 180, Spine: 10, FrontElbow: 175, ArmLegDiff: 5}
}

func dir(deg float64) r2.Vec {
	rad := deg * math.Pi / 180
	return r2.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
}

func polar(origin r2.Vec, deg, length float64) r2.Vec {
	return r2.Add(origin, r2.Scale(length, dir(deg)))
}

// limbs places the front side at the smaller x, which reads as facing right.
func (s Stance) limbs() (front, back pose.Limbs) {
	hipMid := r2.Vec{X: 500, Y: 600}
	spine := s.Spine * math.Pi / 180
	shoulderMid := r2.Sub(hipMid, r2.Scale(300, r2.Vec{X: math.Sin(spine), Y: math.Cos(spine)}))

	front.Hip = r2.Add(hipMid, r2.Vec{X: -50})
	back.Hip = r2.Add(hipMid, r2.Vec{X: 50})
	front.Shoulder = r2.Add(shoulderMid, r2.Vec{X: -50})
	back.Shoulder = r2.Add(shoulderMid, r2.Vec{X: 50})

	front.Knee = r2.Add(front.Hip, r2.Vec{Y: 100})
	front.Ankle = polar(front.Knee, 270-s.FrontKnee, 100)
	back.Knee = r2.Add(back.Hip, r2.Vec{Y: 100})
	back.Ankle = polar(back.Knee, 270+s.BackKnee, 100)

	wristDir := -s.ForearmRise
	shoulderDir := wristDir - s.FrontElbow
	front.Elbow = polar(front.Shoulder, shoulderDir+180, 100)
	front.Wrist = polar(front.Elbow, wristDir, 100)

	legDir := 90.0
	back.Wrist = polar(back.Shoulder, legDir+s.ArmLegDiff, 150)
	back.Elbow = pose.Midpoint(back.Shoulder, back.Wrist)

	return front, back
}

// Sides returns the right and left limbs in pixel space.
func (s Stance) Sides() (right, left pose.Limbs) {
	front, back := s.limbs()
	if s.FacingLeft {
		// Swapping sides moves the right ankle to the larger x.
		return back, front
	}
	return front, back
}

// Landmarks returns a full normalized landmark array for an image of
// Size x Size pixels.
func (s Stance) Landmarks() []pose.Landmark {
	landmarks := make([]pose.Landmark, pose.NumLandmarks)
	for i := range landmarks {
		landmarks[i] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 1}
	}

	right, left := s.Sides()
	set := func(idx pose.LandmarkIndex, p r2.Vec) {
		landmarks[idx] = pose.Landmark{X: p.X / Size, Y: p.Y / Size, Visibility: 1}
	}

	set(pose.RightShoulder, right.Shoulder)
	set(pose.RightElbow, right.Elbow)
	set(pose.RightWrist, right.Wrist)
	set(pose.RightHip, right.Hip)
	set(pose.RightKnee, right.Knee)
	set(pose.RightAnkle, right.Ankle)
	set(pose.LeftShoulder, left.Shoulder)
	set(pose.LeftElbow, left.Elbow)
	set(pose.LeftWrist, left.Wrist)
	set(pose.LeftHip, left.Hip)
	set(pose.LeftKnee, left.Knee)
	set(pose.LeftAnkle, left.Ankle)

	return landmarks
}
