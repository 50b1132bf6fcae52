// Package analysis runs one stance analysis end to end: pose estimation,
// joint angle evaluation and annotation building. It does not decode, render
// or encode images.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/san-kum/fencing-cv/server/annotate"
	"github.com/san-kum/fencing-cv/server/pose"
)

var (
	// ErrNoPoseDetected may be returned by a PoseEstimator instead of an empty
	// landmark slice.
	ErrNoPoseDetected   = errors.New("no pose detected")
	ErrUpstreamAnalysis = errors.New("pose estimation failed")
)

const NoPoseMessage = "Error: No pose detected in the image"

// PoseEstimator returns the landmarks of the single most prominent person in
// img in normalized image coordinates. Implementations must be safe for
// concurrent use.
type PoseEstimator interface {
	EstimatePose(ctx context.Context, img image.Image) ([]pose.Landmark, error)
}

type Status string

const (
	StatusSuccess         Status = "success"
	StatusNoPoseDetected  Status = "no_pose_detected"
	StatusAnalysisFailure Status = "analysis_failure"
)

type Result struct {
	Status       Status                 `json:"status"`
	Stance       pose.Stance            `json:"stance"`
	Feedback     []string               `json:"feedback"`
	Items        []pose.FeedbackItem    `json:"items,omitempty"`
	Angles       pose.Angles            `json:"angles,omitempty"`
	Instructions []annotate.Instruction `json:"instructions,omitempty"`
	FacingRight  bool                   `json:"facing_right"`
	Reason       string                 `json:"reason,omitempty"`
}

type Orchestrator struct {
	estimator PoseEstimator
	options   annotate.Options
}

func NewOrchestrator(estimator PoseEstimator, options annotate.Options) *Orchestrator {
	return &Orchestrator{
		estimator: estimator,
		options:   options,
	}
}

// Analyze estimates the pose in img and evaluates it against the rules for
// stance. A missing pose is a successful call with StatusNoPoseDetected.
// Estimator and landmark failures return a StatusAnalysisFailure result along
// with the error.
func (o *Orchestrator) Analyze(ctx context.Context, img image.Image, stance pose.Stance) (*Result, error) {
	if !stance.Valid() {
		return nil, fmt.Errorf("%w: %q", pose.ErrInvalidStance, string(stance))
	}

	landmarks, err := o.estimator.EstimatePose(ctx, img)
	if errors.Is(err, ErrNoPoseDetected) || (err == nil && len(landmarks) == 0) {
		return NoPose(stance), nil
	}
	if err != nil {
		return failure(stance, err), fmt.Errorf("%w: %w", ErrUpstreamAnalysis, err)
	}

	bounds := img.Bounds()
	report, joints, err := pose.AnalyzeLandmarks(stance, landmarks, bounds.Dx(), bounds.Dy())
	if err != nil {
		return failure(stance, err), fmt.Errorf("failed to analyze landmarks: %w", err)
	}

	return &Result{
		Status:       StatusSuccess,
		Stance:       stance,
		Feedback:     report.Messages(),
		Items:        report.Feedback,
		Angles:       report.Angles,
		Instructions: annotate.Build(joints, report, o.options),
		FacingRight:  report.FacingRight,
	}, nil
}

// NoPose is the result reported when the estimator finds nobody in the image.
func NoPose(stance pose.Stance) *Result {
	return &Result{
		Status:   StatusNoPoseDetected,
		Stance:   stance,
		Feedback: []string{NoPoseMessage},
	}
}

func failure(stance pose.Stance, err error) *Result {
	return &Result{
		Status:   StatusAnalysisFailure,
		Stance:   stance,
		Feedback: []string{},
		Reason:   err.Error(),
	}
}
