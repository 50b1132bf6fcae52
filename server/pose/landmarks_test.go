package pose_test

import (
	"errors"
	"testing"

	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/pose/posetest"
)

func TestAccessorScalesToPixels(t *testing.T) {
	landmarks := make([]pose.Landmark, pose.NumLandmarks)
	landmarks[pose.RightKnee] = pose.Landmark{X: 0.25, Y: 0.5}

	acc := pose.NewAccessor(landmarks, 640, 480)
	p, err := acc.RightKnee()
	if err != nil {
		t.Fatalf("RightKnee: %v", err)
	}
	if p.X != 160 || p.Y != 240 {
		t.Errorf("RightKnee = %v, want (160, 240)", p)
	}
}

func TestAccessorMissingLandmark(t *testing.T) {
	landmarks := make([]pose.Landmark, int(pose.LeftHip))

	acc := pose.NewAccessor(landmarks, 100, 100)
	if _, err := acc.LeftShoulder(); err != nil {
		t.Fatalf("LeftShoulder should be present: %v", err)
	}

	_, err := acc.RightAnkle()
	if !errors.Is(err, pose.ErrLandmarkIndex) {
		t.Fatalf("expected ErrLandmarkIndex, got %v", err)
	}

	var indexErr *pose.LandmarkIndexError
	if !errors.As(err, &indexErr) {
		t.Fatalf("expected *LandmarkIndexError, got %T", err)
	}
	if indexErr.Index != pose.RightAnkle || indexErr.Count != int(pose.LeftHip) {
		t.Errorf("unexpected error fields: %+v", indexErr)
	}

	if _, err := acc.Joints(); !errors.Is(err, pose.ErrLandmarkIndex) {
		t.Errorf("Joints should fail on a short landmark array, got %v", err)
	}
}

func TestJointsFrontBackMapping(t *testing.T) {
	tests := []struct {
		name       string
		facingLeft bool
	}{
		{"facing right", false},
		{"facing left", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fixture := posetest.EnGarde()
			fixture.FacingLeft = tc.facingLeft

			joints, err := pose.NewAccessor(fixture.Landmarks(), posetest.Size, posetest.Size).Joints()
			if err != nil {
				t.Fatalf("Joints: %v", err)
			}
			if joints.FacingRight == tc.facingLeft {
				t.Fatalf("FacingRight = %v, want %v", joints.FacingRight, !tc.facingLeft)
			}

			wantFront, wantBack := joints.Right, joints.Left
			if tc.facingLeft {
				wantFront, wantBack = joints.Left, joints.Right
			}
			if joints.Front() != wantFront || joints.Back() != wantBack {
				t.Error("front/back do not follow the facing direction")
			}
		})
	}
}

func TestParseStance(t *testing.T) {
	tests := []struct {
		in      string
		want    pose.Stance
		wantErr bool
	}{
		{"en_garde", pose.EnGarde, false},
		{" En-Garde ", pose.EnGarde, false},
		{"lunge", pose.Lunge, false},
		{"LUNGE", pose.Lunge, false},
		{"", "", true},
		{"fleche", "", true},
	}

	for _, tc := range tests {
		got, err := pose.ParseStance(tc.in)
		if tc.wantErr {
			if !errors.Is(err, pose.ErrInvalidStance) {
				t.Errorf("ParseStance(%q) error = %v, want ErrInvalidStance", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseStance(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
		}
	}
}
