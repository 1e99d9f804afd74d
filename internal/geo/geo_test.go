package geo

import (
	"math"
	"testing"
	"time"
)

func TestDistance_HundredthDegreeLatitude(t *testing.T) {
	t.Parallel()

	// 0.01 degrees of latitude is roughly 1.11 km regardless of longitude.
	d := Distance(1.0, 1.0, 1.01, 1.0)
	if d < 1100 || d > 1125 {
		t.Errorf("expected ~1112m, got %.2f", d)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	t.Parallel()

	a := Distance(59.91, 10.75, 60.39, 5.32)
	b := Distance(60.39, 5.32, 59.91, 10.75)
	if math.Abs(a-b) > 1e-6 {
		t.Errorf("distance not symmetric: %.6f vs %.6f", a, b)
	}
}

func TestDistance_SamePointIsZero(t *testing.T) {
	t.Parallel()

	if d := Distance(45.0, -122.0, 45.0, -122.0); d != 0 {
		t.Errorf("expected zero distance, got %.6f", d)
	}
}

func TestEstimateArrival_SpeedFloor(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 7, 30, 0, 0, time.UTC)

	// Any speed below 5 mph must behave exactly like 20 mph.
	for _, speed := range []float64{0, 0.5, 3, 4.99} {
		got := EstimateArrival(now, 2000, speed)
		want := EstimateArrival(now, 2000, 20)
		if !got.Equal(want) {
			t.Errorf("speed %.2f: got %v, want %v", speed, got, want)
		}
	}
}

func TestEstimateArrival_KnownOffset(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 7, 30, 0, 0, time.UTC)

	// 1000m at 20 mph (8.9408 m/s) is ~111.8 seconds.
	eta := EstimateArrival(now, 1000, 20)
	offset := eta.Sub(now).Seconds()
	if offset < 111 || offset > 113 {
		t.Errorf("expected ~111.8s offset, got %.2f", offset)
	}
}

func TestEstimateArrival_NeverInThePast(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 7, 30, 0, 0, time.UTC)

	for _, d := range []float64{0, 10, 100000} {
		for _, speed := range []float64{0, 5, 30, 80} {
			eta := EstimateArrival(now, d, speed)
			if eta.Before(now) {
				t.Errorf("distance %.0f speed %.0f: ETA %v before now %v", d, speed, eta, now)
			}
		}
	}
}
