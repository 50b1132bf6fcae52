package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r1"
)

type AngleName string

const (
	AngleRightKnee         AngleName = "right_knee"
	AngleLeftKnee          AngleName = "left_knee"
	AngleRightElbow        AngleName = "right_elbow"
	AngleLeftElbow         AngleName = "left_elbow"
	AngleFrontKnee         AngleName = "front_knee"
	AngleBackKnee          AngleName = "back_knee"
	AngleFrontElbow        AngleName = "front_elbow"
	AngleBackElbow         AngleName = "back_elbow"
	AngleSpineVertical     AngleName = "spine_vertical"
	AngleForearmHorizontal AngleName = "forearm_horizontal"
	AngleArmLegAlignment   AngleName = "arm_leg_alignment"
)

// Angles maps measurement names to degrees.
type Angles map[AngleName]float64

// Rule is one row of a stance rule table. A value below Band.Lo produces the
// Below message and a value above Band.Hi produces the Above message; an
// empty message never fires.
type Rule struct {
	Angle     AngleName
	Label     string
	Band      r1.Interval
	Abs       bool
	Below     string
	Above     string
	OmitValue bool
}

// FeedbackItem is a triggered rule together with the measured value.
type FeedbackItem struct {
	Angle   AngleName `json:"angle"`
	Value   float64   `json:"value"`
	Message string    `json:"message"`
}

// Evaluate checks every rule in table order and returns the triggered items.
// Rules whose angle is missing from angles are skipped.
func Evaluate(rules []Rule, angles Angles) []FeedbackItem {
	feedback := make([]FeedbackItem, 0, len(rules))

	for _, rule := range rules {
		value, ok := angles[rule.Angle]
		if !ok {
			continue
		}

		checked := value
		if rule.Abs {
			checked = math.Abs(value)
		}
		if rule.Band.Contains(checked) {
			continue
		}

		var text string
		switch {
		case checked < rule.Band.Lo:
			text = rule.Below
		case checked > rule.Band.Hi:
			text = rule.Above
		}
		if text == "" {
			continue
		}

		feedback = append(feedback, FeedbackItem{
			Angle:   rule.Angle,
			Value:   value,
			Message: rule.format(value, text),
		})
	}

	return feedback
}

func (r Rule) format(value float64, text string) string {
	if r.OmitValue {
		return fmt.Sprintf("%s: %s", r.Label, text)
	}
	return fmt.Sprintf("%s: %.1f deg - %s", r.Label, value, text)
}

func band(lo, hi float64) r1.Interval {
	return r1.Interval{Lo: lo, Hi: hi}
}

func atLeast(lo float64) r1.Interval {
	return r1.Interval{Lo: lo, Hi: math.Inf(1)}
}

func atMost(hi float64) r1.Interval {
	return r1.Interval{Lo: 0, Hi: hi}
}
