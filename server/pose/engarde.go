package pose

import "gonum.org/v1/gonum/spatial/r2"

var enGardeRules = []Rule{
	{
		Angle: AngleFrontKnee,
		Label: "Front knee angle",
		Band:  band(40, 60),
		Below: "Bend your knees more",
		Above: "You're sitting too low",
	},
	{
		Angle: AngleBackKnee,
		Label: "Back knee angle",
		Band:  band(40, 60),
		Below: "Bend your knees more",
		Above: "You're sitting too low",
	},
	{
		Angle: AngleSpineVertical,
		Label: "Back angle",
		Band:  atMost(30),
		Abs:   true,
		Above: "Keep your back straight",
	},
	{
		Angle: AngleFrontElbow,
		Label: "Front elbow angle",
		Band:  band(90-15, 90+15),
		Below: "Your front elbow should be ~90 deg",
		Above: "Your front elbow should be ~90 deg",
	},
	{
		Angle: AngleForearmHorizontal,
		Label: "Front forearm angle",
		Band:  atMost(10),
		Abs:   true,
		Above: "Keep your arm up",
	},
}

// ForearmHorizontal measures the front forearm against the horizontal. When
// the wrist sits above the elbow the reading is mirrored to 180-v.
func ForearmHorizontal(elbow, wrist r2.Vec) float64 {
	reference := r2.Vec{X: elbow.X + 1, Y: elbow.Y}
	angle := Angle(reference, elbow, wrist)
	if wrist.Y < elbow.Y {
		angle = 180 - angle
	}
	return angle
}

func measureEnGarde(j Joints, angles Angles) {
	front := j.Front()
	angles[AngleForearmHorizontal] = ForearmHorizontal(front.Elbow, front.Wrist)
}
