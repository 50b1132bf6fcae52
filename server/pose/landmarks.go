package pose

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// LandmarkIndex identifies a body joint in the 33 point pose scheme used by
// BlazePose style estimators.
type LandmarkIndex int

const (
	Nose LandmarkIndex = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	NumLandmarks = 33
)

var landmarkNames = [NumLandmarks]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer", "right_eye_inner",
	"right_eye", "right_eye_outer", "left_ear", "right_ear", "mouth_left",
	"mouth_right", "left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_pinky", "right_pinky", "left_index",
	"right_index", "left_thumb", "right_thumb", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle", "left_heel",
	"right_heel", "left_foot_index", "right_foot_index",
}

// Connection is one bone of the skeleton drawn over annotated images.
type Connection struct {
	From, To LandmarkIndex
}

// PoseConnections is the BlazePose skeleton: face, arms with hands, torso and
// legs with feet.
var PoseConnections = []Connection{
	{Nose, LeftEyeInner}, {LeftEyeInner, LeftEye}, {LeftEye, LeftEyeOuter}, {LeftEyeOuter, LeftEar},
	{Nose, RightEyeInner}, {RightEyeInner, RightEye}, {RightEye, RightEyeOuter}, {RightEyeOuter, RightEar},
	{MouthLeft, MouthRight},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{LeftWrist, LeftPinky}, {LeftWrist, LeftIndex}, {LeftWrist, LeftThumb}, {LeftPinky, LeftIndex},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{RightWrist, RightPinky}, {RightWrist, RightIndex}, {RightWrist, RightThumb}, {RightPinky, RightIndex},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip}, {LeftHip, RightHip},
	{LeftHip, LeftKnee}, {RightHip, RightKnee},
	{LeftKnee, LeftAnkle}, {RightKnee, RightAnkle},
	{LeftAnkle, LeftHeel}, {RightAnkle, RightHeel},
	{LeftHeel, LeftFootIndex}, {RightHeel, RightFootIndex},
	{LeftAnkle, LeftFootIndex}, {RightAnkle, RightFootIndex},
}

func (i LandmarkIndex) String() string {
	if i < 0 || int(i) >= NumLandmarks {
		return fmt.Sprintf("landmark(%d)", int(i))
	}
	return landmarkNames[i]
}

// Landmark is a joint position normalized to the image size. Z and Visibility
// are carried through from the estimator but not used by the analysis.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

var ErrLandmarkIndex = errors.New("landmark index out of range")

// LandmarkIndexError reports a landmark the estimator did not return.
type LandmarkIndexError struct {
	Index LandmarkIndex
	Count int
}

func (e *LandmarkIndexError) Error() string {
	return fmt.Sprintf("landmark %s (index %d) missing: estimator returned %d landmarks",
		e.Index, int(e.Index), e.Count)
}

func (e *LandmarkIndexError) Is(target error) bool {
	return target == ErrLandmarkIndex
}

// Accessor maps landmark indices to pixel coordinates.
type Accessor struct {
	landmarks []Landmark
	width     float64
	height    float64
}

func NewAccessor(landmarks []Landmark, width, height int) *Accessor {
	return &Accessor{
		landmarks: landmarks,
		width:     float64(width),
		height:    float64(height),
	}
}

// Point returns the pixel position of the landmark at idx.
func (a *Accessor) Point(idx LandmarkIndex) (r2.Vec, error) {
	if idx < 0 || int(idx) >= len(a.landmarks) {
		return r2.Vec{}, &LandmarkIndexError{Index: idx, Count: len(a.landmarks)}
	}
	lm := a.landmarks[idx]
	return r2.Vec{X: lm.X * a.width, Y: lm.Y * a.height}, nil
}

func (a *Accessor) RightShoulder() (r2.Vec, error) { return a.Point(RightShoulder) }
func (a *Accessor) LeftShoulder() (r2.Vec, error)  { return a.Point(LeftShoulder) }
func (a *Accessor) RightElbow() (r2.Vec, error)    { return a.Point(RightElbow) }
func (a *Accessor) LeftElbow() (r2.Vec, error)     { return a.Point(LeftElbow) }
func (a *Accessor) RightWrist() (r2.Vec, error)    { return a.Point(RightWrist) }
func (a *Accessor) LeftWrist() (r2.Vec, error)     { return a.Point(LeftWrist) }
func (a *Accessor) RightHip() (r2.Vec, error)      { return a.Point(RightHip) }
func (a *Accessor) LeftHip() (r2.Vec, error)       { return a.Point(LeftHip) }
func (a *Accessor) RightKnee() (r2.Vec, error)     { return a.Point(RightKnee) }
func (a *Accessor) LeftKnee() (r2.Vec, error)      { return a.Point(LeftKnee) }
func (a *Accessor) RightAnkle() (r2.Vec, error)    { return a.Point(RightAnkle) }
func (a *Accessor) LeftAnkle() (r2.Vec, error)     { return a.Point(LeftAnkle) }

// Points returns every landmark in pixel space, in index order.
func (a *Accessor) Points() []r2.Vec {
	points := make([]r2.Vec, len(a.landmarks))
	for i, lm := range a.landmarks {
		points[i] = r2.Vec{X: lm.X * a.width, Y: lm.Y * a.height}
	}
	return points
}

// Joints extracts both sides of the body and the facing direction.
func (a *Accessor) Joints() (Joints, error) {
	right, err := a.limbs(RightShoulder, RightElbow, RightWrist, RightHip, RightKnee, RightAnkle)
	if err != nil {
		return Joints{}, err
	}
	left, err := a.limbs(LeftShoulder, LeftElbow, LeftWrist, LeftHip, LeftKnee, LeftAnkle)
	if err != nil {
		return Joints{}, err
	}

	return Joints{
		Right:       right,
		Left:        left,
		FacingRight: FacingRight(right.Ankle, left.Ankle),
		Height:      a.height,
		Points:      a.Points(),
	}, nil
}

func (a *Accessor) limbs(shoulder, elbow, wrist, hip, knee, ankle LandmarkIndex) (Limbs, error) {
	indices := [6]LandmarkIndex{shoulder, elbow, wrist, hip, knee, ankle}
	var points [6]r2.Vec
	for i, idx := range indices {
		p, err := a.Point(idx)
		if err != nil {
			return Limbs{}, err
		}
		points[i] = p
	}

	return Limbs{
		Shoulder: points[0],
		Elbow:    points[1],
		Wrist:    points[2],
		Hip:      points[3],
		Knee:     points[4],
		Ankle:    points[5],
	}, nil
}
