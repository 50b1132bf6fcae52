package annotate_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/fencing-cv/server/annotate"
	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/pose/posetest"
	"gonum.org/v1/gonum/spatial/r2"
)

func analyze(t *testing.T, stance pose.Stance, fixture posetest.Stance) (*pose.Report, pose.Joints) {
	t.Helper()
	report, joints, err := pose.AnalyzeLandmarks(stance, fixture.Landmarks(), posetest.Size, posetest.Size)
	if err != nil {
		t.Fatalf("AnalyzeLandmarks: %v", err)
	}
	return report, joints
}

func TestArcTakesShorterWay(t *testing.T) {
	tests := []struct {
		name       string
		p1, p3     r2.Vec
		start, end float64
	}{
		{"quarter", r2.Vec{X: 11, Y: 5}, r2.Vec{X: 10, Y: 6}, 0, 90},
		{"across the seam", r2.Vec{X: 10 + math.Cos(170*math.Pi/180), Y: 5 + math.Sin(170*math.Pi/180)},
			r2.Vec{X: 10 + math.Cos(-170*math.Pi/180), Y: 5 + math.Sin(-170*math.Pi/180)}, 170, 190},
		{"negative sweep", r2.Vec{X: 10, Y: 6}, r2.Vec{X: 11, Y: 5}, 90, 0},
	}

	vertex := r2.Vec{X: 10, Y: 5}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			arc := annotate.Arc(tc.p1, vertex, tc.p3)
			if arc.Kind != annotate.KindArc || arc.Radius != annotate.ArcRadius {
				t.Fatalf("unexpected arc %+v", arc)
			}
			if math.Abs(arc.StartAngle-tc.start) > 1e-9 || math.Abs(arc.EndAngle-tc.end) > 1e-9 {
				t.Errorf("arc = [%f, %f], want [%f, %f]", arc.StartAngle, arc.EndAngle, tc.start, tc.end)
			}
			if arc.X != vertex.X || arc.Y != vertex.Y {
				t.Errorf("arc centred at (%f, %f), want vertex", arc.X, arc.Y)
			}
		})
	}
}

// skeletonSize is the number of skeleton instructions for a full landmark set.
var skeletonSize = len(pose.PoseConnections) + pose.NumLandmarks

func TestBuildEnGarde(t *testing.T) {
	report, joints := analyze(t, pose.EnGarde, posetest.EnGarde())

	got := annotate.Build(joints, report, annotate.Options{})
	if len(got) != skeletonSize+9 {
		t.Fatalf("got %d instructions, want skeleton plus 9", len(got))
	}
	got = got[skeletonSize:]
	if len(got) != 9 {
		t.Fatalf("expected 4 arcs, 4 labels and a caption, got %d instructions", len(got))
	}

	order := []pose.AngleName{pose.AngleRightKnee, pose.AngleLeftKnee, pose.AngleRightElbow, pose.AngleLeftElbow}
	for i, name := range order {
		arc, label := got[2*i], got[2*i+1]
		if arc.Kind != annotate.KindArc || label.Kind != annotate.KindLabel {
			t.Fatalf("%s: expected arc then label, got %s then %s", name, arc.Kind, label.Kind)
		}

		value := report.Angles[name]
		if sweep := math.Abs(arc.EndAngle - arc.StartAngle); math.Abs(sweep-value) > 1e-6 {
			t.Errorf("%s: sweep %f does not match angle %f", name, sweep, value)
		}
		if label.X != arc.X+20 || label.Y != arc.Y-20 {
			t.Errorf("%s: label at (%f, %f), arc at (%f, %f)", name, label.X, label.Y, arc.X, arc.Y)
		}
		if !strings.HasSuffix(label.Text, " deg") {
			t.Errorf("%s: label text %q", name, label.Text)
		}
		if label.Color != annotate.Blue || arc.Color != annotate.Cyan {
			t.Errorf("%s: unexpected colors", name)
		}
	}

	caption := got[8]
	if caption.Text != "Stance: en-garde" || caption.X != 10 || caption.Y != 30 || caption.Color != annotate.Green {
		t.Errorf("unexpected caption %+v", caption)
	}
}

func TestBuildDrawsSkeletonFirst(t *testing.T) {
	report, joints := analyze(t, pose.Lunge, posetest.Lunge())
	got := annotate.Build(joints, report, annotate.Options{})

	if len(pose.PoseConnections) != 35 {
		t.Fatalf("skeleton has %d connections, want 35", len(pose.PoseConnections))
	}

	lines, points := 0, 0
	for i, in := range got[:skeletonSize] {
		switch in.Kind {
		case annotate.KindLine:
			if points > 0 {
				t.Fatalf("instruction %d: line after points", i)
			}
			lines++
		case annotate.KindPoint:
			points++
		default:
			t.Fatalf("instruction %d: %s inside the skeleton", i, in.Kind)
		}
	}
	if lines != 35 || points != pose.NumLandmarks {
		t.Errorf("lines=%d points=%d", lines, points)
	}
	if got[skeletonSize].Kind != annotate.KindArc {
		t.Errorf("first instruction after the skeleton is %s, want arc", got[skeletonSize].Kind)
	}

	// The right elbow to right wrist bone ends on the two joints.
	for i, conn := range pose.PoseConnections {
		if conn.From != pose.RightElbow || conn.To != pose.RightWrist {
			continue
		}
		line := got[i]
		if line.X != joints.Right.Elbow.X || line.Y != joints.Right.Elbow.Y ||
			line.X2 != joints.Right.Wrist.X || line.Y2 != joints.Right.Wrist.Y {
			t.Errorf("forearm line = %+v", line)
		}
		if line.Color != annotate.White {
			t.Errorf("line color = %s", line.Color.Hex())
		}
	}
}

func TestSkeletonSkipsMissingLandmarks(t *testing.T) {
	points := make([]r2.Vec, int(pose.RightShoulder)+1)
	got := annotate.Skeleton(points)

	lines := 0
	for _, in := range got {
		if in.Kind == annotate.KindLine {
			lines++
		}
	}
	// Face connections (9) and the shoulder line survive.
	if lines != 10 {
		t.Errorf("lines = %d, want 10", lines)
	}
	if len(got)-lines != len(points) {
		t.Errorf("points = %d, want %d", len(got)-lines, len(points))
	}
	if len(annotate.Skeleton(nil)) != 0 {
		t.Error("no landmarks should draw nothing")
	}
}

func TestBuildLungeCaption(t *testing.T) {
	report, joints := analyze(t, pose.Lunge, posetest.Lunge())

	got := annotate.Build(joints, report, annotate.Options{})
	if last := got[len(got)-1]; last.Text != "Stance: lunge" {
		t.Errorf("caption = %q", last.Text)
	}
}

func TestBuildOverlaysFeedback(t *testing.T) {
	fixture := posetest.EnGarde()
	fixture.FrontKnee = 30
	fixture.Spine = 40
	report, joints := analyze(t, pose.EnGarde, fixture)

	without := annotate.Build(joints, report, annotate.Options{})
	with := annotate.Build(joints, report, annotate.Options{OverlayFeedback: true})
	if len(with) != len(without)+len(report.Feedback) {
		t.Fatalf("expected %d overlay lines, got %d", len(report.Feedback), len(with)-len(without))
	}

	for i, item := range report.Feedback {
		line := with[len(without)+i]
		if line.Text != item.Message || line.Color != annotate.Red {
			t.Errorf("overlay %d = %+v", i, line)
		}
		if line.Y != 60+float64(i)*30 {
			t.Errorf("overlay %d at y=%f", i, line.Y)
		}
	}
}

func TestInstructionJSON(t *testing.T) {
	arc := annotate.Arc(r2.Vec{X: 1, Y: 0}, r2.Vec{}, r2.Vec{X: 0, Y: 1})
	data, err := json.Marshal(arc)
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["type"] != "arc" || fields["color"] != "#00ffff" {
		t.Errorf("unexpected JSON %s", data)
	}
	if _, ok := fields["start_angle"]; !ok {
		t.Errorf("start_angle missing from %s", data)
	}

	var back annotate.Instruction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Color != annotate.Cyan {
		t.Errorf("color round trip = %+v", back.Color)
	}
}
