// Package alert implements the glucose alert decision table. Nothing
// here performs I/O or holds mutable state: Decide is a deterministic
// function of its three arguments.
package alert

import (
	"fmt"

	"github.com/sugarbridge/activity-engine/internal/activity"
)

// Content is the title/body pair attached to a Live Activity push.
type Content struct {
	Title string
	Body  string
}

// Decide returns an alert to attach to the next push, or nil if none is
// warranted. It returns nil whenever previous or prefs is nil, since
// there is nothing yet to compare the current reading against.
func Decide(current activity.Reading, previous *activity.Reading, prefs *activity.Preferences) *Content {
	if previous == nil || prefs == nil {
		return nil
	}

	rapidChange := current.Trend == activity.TrendDoubleUp || current.Trend == activity.TrendDoubleDown
	crossedBand := prefs.TargetRange.Contains(current.Value) != prefs.TargetRange.Contains(previous.Value)

	if !rapidChange && !crossedBand {
		return nil
	}

	adj := trendAdjective(current.Trend)

	switch {
	case current.Value > prefs.TargetRange.Upper:
		return &Content{
			Title: "High Glucose",
			Body:  fmt.Sprintf("Now %s and %s, was %s.", formatValue(current.Value, prefs.Unit), risingAdjective(adj), formatValue(previous.Value, prefs.Unit)),
		}
	case current.Value < prefs.TargetRange.Lower:
		return &Content{
			Title: "Low Glucose",
			Body:  fmt.Sprintf("Now %s and %s, was %s.", formatValue(current.Value, prefs.Unit), fallingAdjective(adj), formatValue(previous.Value, prefs.Unit)),
		}
	default:
		steady := trendAdjective(current.Trend)
		if steady == "nil" {
			steady = "steady"
		}
		return &Content{
			Title: "Back in Range",
			Body:  capitalize(steady),
		}
	}
}

// risingAdjective and fallingAdjective exist because the body templates
// phrase the same adjective set differently depending on direction
// ("rising"/"falling") while sharing the speed qualifier
// ("slowly"/"quickly"). trendAdjective already returns the full phrase
// for the reading's actual trend, so these are pass-throughs that only
// matter when trend is "nil" (unknown) and a direction still needs to
// be implied by which bound was crossed.
func risingAdjective(adj string) string {
	if adj == "nil" {
		return "rising"
	}
	return adj
}

func fallingAdjective(adj string) string {
	if adj == "nil" {
		return "falling"
	}
	return adj
}

// trendAdjective maps a provider trend enum to the phrase used in push
// copy.
func trendAdjective(t activity.Trend) string {
	switch t {
	case activity.TrendFlat:
		return "stable"
	case activity.TrendFortyFiveUp:
		return "rising slowly"
	case activity.TrendFortyFiveDown:
		return "falling slowly"
	case activity.TrendSingleUp:
		return "rising"
	case activity.TrendSingleDown:
		return "falling"
	case activity.TrendDoubleUp:
		return "rising quickly"
	case activity.TrendDoubleDown:
		return "falling quickly"
	default:
		return "nil"
	}
}

// formatValue renders a raw reading value for display. The comparison
// against TargetRange always happens on the unconverted integer value
// upstream of this function; unit conversion is pinned to the formatter
// only, never to the decision itself, since TargetRange is stored in
// the same unit as the reading.
func formatValue(value int, unit activity.Unit) string {
	if unit == activity.UnitMmol {
		return fmt.Sprintf("%.1f mmol/L", float64(value)/18.0)
	}
	return fmt.Sprintf("%d mg/dL", value)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}
