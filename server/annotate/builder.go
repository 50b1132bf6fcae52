// Package annotate turns an analysis into abstract drawing instructions. The
// instructions carry no pixel data and are painted by a renderer.
package annotate

import (
	"fmt"
	"math"

	"github.com/san-kum/fencing-cv/server/pose"
	"gonum.org/v1/gonum/spatial/r2"
)

type Kind string

const (
	KindArc   Kind = "arc"
	KindLabel Kind = "label"
	KindLine  Kind = "line"
	KindPoint Kind = "point"
)

// Instruction is an arc centred on a joint, a text label, a skeleton line
// from (X, Y) to (X2, Y2) or a landmark point. Positions are in pixels; angles
// are in degrees measured clockwise from +x because the image y axis points
// down.
type Instruction struct {
	Kind       Kind    `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	X2         float64 `json:"x2,omitempty"`
	Y2         float64 `json:"y2,omitempty"`
	Radius     float64 `json:"radius,omitempty"`
	StartAngle float64 `json:"start_angle"`
	EndAngle   float64 `json:"end_angle"`
	Text       string  `json:"text,omitempty"`
	Color      Color   `json:"color"`
	Scale      float64 `json:"scale,omitempty"`
	Thickness  int     `json:"thickness"`
}

const (
	ArcRadius   = 30.0
	PointRadius = 2.0

	labelOffsetX = 20.0
	labelOffsetY = -20.0
)

var (
	captionPosition = r2.Vec{X: 10, Y: 30}
	feedbackOrigin  = r2.Vec{X: 10, Y: 60}
	feedbackSpacing = 30.0
)

type Options struct {
	// OverlayFeedback writes each feedback message onto the image.
	OverlayFeedback bool
}

type jointArc struct {
	angle                    pose.AngleName
	proximal, vertex, distal func(pose.Joints) r2.Vec
}

var jointArcs = []jointArc{
	{
		angle:    pose.AngleRightKnee,
		proximal: func(j pose.Joints) r2.Vec { return j.Right.Hip },
		vertex:   func(j pose.Joints) r2.Vec { return j.Right.Knee },
		distal:   func(j pose.Joints) r2.Vec { return j.Right.Ankle },
	},
	{
		angle:    pose.AngleLeftKnee,
		proximal: func(j pose.Joints) r2.Vec { return j.Left.Hip },
		vertex:   func(j pose.Joints) r2.Vec { return j.Left.Knee },
		distal:   func(j pose.Joints) r2.Vec { return j.Left.Ankle },
	},
	{
		angle:    pose.AngleRightElbow,
		proximal: func(j pose.Joints) r2.Vec { return j.Right.Shoulder },
		vertex:   func(j pose.Joints) r2.Vec { return j.Right.Elbow },
		distal:   func(j pose.Joints) r2.Vec { return j.Right.Wrist },
	},
	{
		angle:    pose.AngleLeftElbow,
		proximal: func(j pose.Joints) r2.Vec { return j.Left.Shoulder },
		vertex:   func(j pose.Joints) r2.Vec { return j.Left.Elbow },
		distal:   func(j pose.Joints) r2.Vec { return j.Left.Wrist },
	},
}

// Build emits the skeleton, then an arc and a value label for each knee and
// elbow, then the stance caption, then the feedback overlay when enabled.
func Build(joints pose.Joints, report *pose.Report, opts Options) []Instruction {
	instructions := Skeleton(joints.Points)

	for _, ja := range jointArcs {
		value, ok := report.Angles[ja.angle]
		if !ok {
			continue
		}
		vertex := ja.vertex(joints)
		instructions = append(instructions,
			Arc(ja.proximal(joints), vertex, ja.distal(joints)),
			AngleLabel(vertex, value),
		)
	}

	instructions = append(instructions, Instruction{
		Kind:      KindLabel,
		X:         captionPosition.X,
		Y:         captionPosition.Y,
		Text:      fmt.Sprintf("Stance: %s", report.Stance.DisplayName()),
		Color:     Green,
		Scale:     1,
		Thickness: 2,
	})

	if opts.OverlayFeedback {
		for i, item := range report.Feedback {
			instructions = append(instructions, Instruction{
				Kind:      KindLabel,
				X:         feedbackOrigin.X,
				Y:         feedbackOrigin.Y + float64(i)*feedbackSpacing,
				Text:      item.Message,
				Color:     Red,
				Scale:     0.55,
				Thickness: 2,
			})
		}
	}

	return instructions
}

// Skeleton draws every connection whose endpoints are both present, then a
// dot on each landmark.
func Skeleton(points []r2.Vec) []Instruction {
	instructions := make([]Instruction, 0, len(pose.PoseConnections)+len(points))

	for _, conn := range pose.PoseConnections {
		if int(conn.From) >= len(points) || int(conn.To) >= len(points) {
			continue
		}
		from, to := points[conn.From], points[conn.To]
		instructions = append(instructions, Instruction{
			Kind:      KindLine,
			X:         from.X,
			Y:         from.Y,
			X2:        to.X,
			Y2:        to.Y,
			Color:     White,
			Thickness: 2,
		})
	}

	for _, p := range points {
		instructions = append(instructions, Instruction{
			Kind:      KindPoint,
			X:         p.X,
			Y:         p.Y,
			Radius:    PointRadius,
			Color:     Red,
			Thickness: 2,
		})
	}

	return instructions
}

// Arc returns the shorter arc at vertex between the directions to p1 and p3.
func Arc(p1, vertex, p3 r2.Vec) Instruction {
	start := math.Atan2(p1.Y-vertex.Y, p1.X-vertex.X) * 180 / math.Pi
	end := math.Atan2(p3.Y-vertex.Y, p3.X-vertex.X) * 180 / math.Pi

	sweep := end - start
	if sweep > 180 {
		sweep -= 360
	} else if sweep < -180 {
		sweep += 360
	}

	return Instruction{
		Kind:       KindArc,
		X:          vertex.X,
		Y:          vertex.Y,
		Radius:     ArcRadius,
		StartAngle: start,
		EndAngle:   start + sweep,
		Color:      Cyan,
		Thickness:  2,
	}
}

// AngleLabel places the rounded angle value up and to the right of vertex.
func AngleLabel(vertex r2.Vec, degrees float64) Instruction {
	return Instruction{
		Kind:      KindLabel,
		X:         vertex.X + labelOffsetX,
		Y:         vertex.Y + labelOffsetY,
		Text:      fmt.Sprintf("%.1f deg", degrees),
		Color:     Blue,
		Scale:     0.7,
		Thickness: 2,
	}
}
