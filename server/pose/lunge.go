package pose

var lungeRules = []Rule{
	{
		Angle: AngleFrontKnee,
		Label: "Front knee angle",
		Band:  band(78, 102),
		Below: "You're lunging too far",
		Above: "You're lunging too short",
	},
	{
		Angle: AngleBackKnee,
		Label: "Back knee angle",
		Band:  atLeast(170),
		Below: "Fully extend your back leg",
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
		Band:  atLeast(170),
		Below: "Fully extend your arm",
	},
	{
		Angle:     AngleArmLegAlignment,
		Label:     "Arm-leg alignment",
		Band:      atMost(20),
		Above:     "Back arm should be roughly parallel with the back leg",
		OmitValue: true,
	},
}

// ArmLegAlignment compares the back shoulder->wrist direction with the back
// hip->knee direction and returns the smaller angle between them.
func ArmLegAlignment(back Limbs) float64 {
	arm := DirectionalAngle(back.Shoulder, back.Wrist)
	leg := DirectionalAngle(back.Hip, back.Knee)
	return AlignmentDiff(arm, leg)
}

func measureLunge(j Joints, angles Angles) {
	back := j.Back()
	angles[AngleBackElbow] = Angle(back.Shoulder, back.Elbow, back.Wrist)
	angles[AngleArmLegAlignment] = ArmLegAlignment(back)
}
