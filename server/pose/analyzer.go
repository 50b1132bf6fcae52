// Package pose turns pose-estimator landmarks into joint angles and rule based
// coaching feedback for fencing stances.
//
// Everything in this package is a pure function of its inputs and is safe to
// call from multiple goroutines.
package pose

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// Report is the outcome of analyzing one image for one stance.
type Report struct {
	Stance      Stance         `json:"stance"`
	FacingRight bool           `json:"facing_right"`
	Angles      Angles         `json:"angles"`
	Feedback    []FeedbackItem `json:"feedback"`
}

// Messages returns the feedback strings in check order.
func (r *Report) Messages() []string {
	messages := make([]string, len(r.Feedback))
	for i, item := range r.Feedback {
		messages[i] = item.Message
	}
	return messages
}

// Rules returns the rule table for a stance.
func Rules(stance Stance) ([]Rule, error) {
	switch stance {
	case EnGarde:
		return enGardeRules, nil
	case Lunge:
		return lungeRules, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidStance, string(stance))
}

// Measure computes the angles shared by both stances.
func Measure(j Joints) Angles {
	angles := Angles{
		AngleRightKnee:  Angle(j.Right.Hip, j.Right.Knee, j.Right.Ankle),
		AngleLeftKnee:   Angle(j.Left.Hip, j.Left.Knee, j.Left.Ankle),
		AngleRightElbow: Angle(j.Right.Shoulder, j.Right.Elbow, j.Right.Wrist),
		AngleLeftElbow:  Angle(j.Left.Shoulder, j.Left.Elbow, j.Left.Wrist),
	}

	shoulderMid := j.ShoulderMid()
	vertical := r2.Vec{X: shoulderMid.X, Y: j.Height}
	angles[AngleSpineVertical] = Angle(vertical, shoulderMid, j.HipMid())

	if j.FacingRight {
		angles[AngleFrontKnee] = angles[AngleRightKnee]
		angles[AngleBackKnee] = angles[AngleLeftKnee]
		angles[AngleFrontElbow] = angles[AngleRightElbow]
	} else {
		angles[AngleFrontKnee] = angles[AngleLeftKnee]
		angles[AngleBackKnee] = angles[AngleRightKnee]
		angles[AngleFrontElbow] = angles[AngleLeftElbow]
	}

	return angles
}

// Analyze measures the joints and evaluates the stance rule table.
func Analyze(stance Stance, j Joints) (*Report, error) {
	rules, err := Rules(stance)
	if err != nil {
		return nil, err
	}

	angles := Measure(j)
	switch stance {
	case EnGarde:
		measureEnGarde(j, angles)
	case Lunge:
		measureLunge(j, angles)
	}

	return &Report{
		Stance:      stance,
		FacingRight: j.FacingRight,
		Angles:      angles,
		Feedback:    Evaluate(rules, angles),
	}, nil
}

// AnalyzeLandmarks runs the accessor and analyzer for a raw landmark array.
func AnalyzeLandmarks(stance Stance, landmarks []Landmark, width, height int) (*Report, Joints, error) {
	joints, err := NewAccessor(landmarks, width, height).Joints()
	if err != nil {
		return nil, Joints{}, err
	}
	report, err := Analyze(stance, joints)
	if err != nil {
		return nil, Joints{}, err
	}
	return report, joints, nil
}
