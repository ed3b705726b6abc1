package alert

import (
	"testing"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
)

func prefs(lower, upper int, unit activity.Unit) *activity.Preferences {
	return &activity.Preferences{TargetRange: activity.TargetRange{Lower: lower, Upper: upper}, Unit: unit}
}

func reading(value int, trend activity.Trend) activity.Reading {
	return activity.Reading{Date: time.Now(), Value: value, Trend: trend}
}

func TestDecideNilWithoutHistory(t *testing.T) {
	got := Decide(reading(200, activity.TrendFlat), nil, prefs(70, 180, activity.UnitMgdl))
	if got != nil {
		t.Fatalf("expected nil alert with no previous reading, got %+v", got)
	}
}

func TestDecideNilWithoutPreferences(t *testing.T) {
	prev := reading(150, activity.TrendFlat)
	got := Decide(reading(200, activity.TrendFlat), &prev, nil)
	if got != nil {
		t.Fatalf("expected nil alert with no preferences, got %+v", got)
	}
}

func TestDecideNoAlertWithinRangeAndSlowTrend(t *testing.T) {
	prev := reading(150, activity.TrendFlat)
	got := Decide(reading(155, activity.TrendFlat), &prev, prefs(70, 180, activity.UnitMgdl))
	if got != nil {
		t.Fatalf("expected no alert for an in-range, non-rapid move, got %+v", got)
	}
}

func TestDecideHighGlucoseOnCrossingUpperBound(t *testing.T) {
	prev := reading(170, activity.TrendFlat)
	got := Decide(reading(190, activity.TrendSingleUp), &prev, prefs(70, 180, activity.UnitMgdl))
	if got == nil {
		t.Fatal("expected a High Glucose alert")
	}
	if got.Title != "High Glucose" {
		t.Fatalf("title = %q, want High Glucose", got.Title)
	}
	want := "Now 190 mg/dL and rising, was 170 mg/dL."
	if got.Body != want {
		t.Fatalf("body = %q, want %q", got.Body, want)
	}
}

func TestDecideLowGlucoseOnCrossingLowerBound(t *testing.T) {
	prev := reading(80, activity.TrendFlat)
	got := Decide(reading(60, activity.TrendSingleDown), &prev, prefs(70, 180, activity.UnitMgdl))
	if got == nil {
		t.Fatal("expected a Low Glucose alert")
	}
	want := "Now 60 mg/dL and falling, was 80 mg/dL."
	if got.Body != want {
		t.Fatalf("body = %q, want %q", got.Body, want)
	}
}

func TestDecideBackInRangeUsesActualTrend(t *testing.T) {
	prev := reading(60, activity.TrendSingleDown)
	got := Decide(reading(90, activity.TrendFortyFiveUp), &prev, prefs(70, 180, activity.UnitMgdl))
	if got == nil {
		t.Fatal("expected a Back in Range alert")
	}
	if got.Title != "Back in Range" {
		t.Fatalf("title = %q, want Back in Range", got.Title)
	}
	if got.Body != "Rising slowly" {
		t.Fatalf("body = %q, want %q", got.Body, "Rising slowly")
	}
}

func TestDecideRapidChangeAlertsEvenInsideRange(t *testing.T) {
	prev := reading(120, activity.TrendFlat)
	got := Decide(reading(160, activity.TrendDoubleUp), &prev, prefs(70, 180, activity.UnitMgdl))
	if got == nil {
		t.Fatal("expected an alert for a rapid in-range move")
	}
	if got.Title != "Back in Range" {
		t.Fatalf("title = %q, want Back in Range (still within target range)", got.Title)
	}
}

func TestDecideFormatsMmolValues(t *testing.T) {
	prev := reading(170, activity.TrendFlat)
	got := Decide(reading(190, activity.TrendSingleUp), &prev, prefs(70, 180, activity.UnitMmol))
	if got == nil {
		t.Fatal("expected a High Glucose alert")
	}
	want := "Now 10.6 mmol/L and rising, was 9.4 mmol/L."
	if got.Body != want {
		t.Fatalf("body = %q, want %q", got.Body, want)
	}
}
