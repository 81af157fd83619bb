package providers

import (
	"errors"
	"math"
	"testing"
)

func TestLifecycleHappyPath(t *testing.T) {
	lc := Lifecycle{Name: "open_meteo"}

	if err := lc.Ready(); err == nil {
		t.Error("expected Ready to fail before setup")
	}

	setupRuns := 0
	if err := lc.RunSetup(func() error { setupRuns++; return nil }); err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	if setupRuns != 1 {
		t.Fatalf("expected setup to run once, ran %d times", setupRuns)
	}
	if err := lc.Ready(); err != nil {
		t.Errorf("expected Ready after setup, got %v", err)
	}

	teardownRuns := 0
	if err := lc.RunTeardown(func() error { teardownRuns++; return nil }); err != nil {
		t.Fatalf("RunTeardown: %v", err)
	}
	if teardownRuns != 1 {
		t.Fatalf("expected teardown to run once, ran %d times", teardownRuns)
	}
	if err := lc.Ready(); err == nil {
		t.Error("expected Ready to fail after teardown")
	}
}

func TestLifecycleDoubleSetupNoOps(t *testing.T) {
	lc := Lifecycle{Name: "weatherbit"}

	runs := 0
	fn := func() error { runs++; return nil }

	if err := lc.RunSetup(fn); err != nil {
		t.Fatalf("first RunSetup: %v", err)
	}
	if err := lc.RunSetup(fn); err != nil {
		t.Fatalf("second RunSetup should no-op, got %v", err)
	}
	if runs != 1 {
		t.Errorf("expected setup body to run once, ran %d times", runs)
	}
}

func TestLifecycleSetupAfterTeardownRefused(t *testing.T) {
	lc := Lifecycle{Name: "meteostat"}

	if err := lc.RunSetup(func() error { return nil }); err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	if err := lc.RunTeardown(func() error { return nil }); err != nil {
		t.Fatalf("RunTeardown: %v", err)
	}

	runs := 0
	err := lc.RunSetup(func() error { runs++; return nil })
	if err == nil {
		t.Fatal("expected setup after teardown to be refused")
	}
	if runs != 0 {
		t.Errorf("refused setup must not run the body, ran %d times", runs)
	}
	if readyErr := lc.Ready(); readyErr == nil {
		t.Error("provider must stay torn down")
	}
}

func TestLifecycleDoubleTeardownNoOps(t *testing.T) {
	lc := Lifecycle{Name: "tomorrow_io"}

	if err := lc.RunSetup(func() error { return nil }); err != nil {
		t.Fatalf("RunSetup: %v", err)
	}

	runs := 0
	fn := func() error { runs++; return nil }
	if err := lc.RunTeardown(fn); err != nil {
		t.Fatalf("first RunTeardown: %v", err)
	}
	if err := lc.RunTeardown(fn); err != nil {
		t.Fatalf("second RunTeardown should no-op, got %v", err)
	}
	if runs != 1 {
		t.Errorf("expected teardown body to run once, ran %d times", runs)
	}
}

func TestLifecycleTeardownBeforeSetupLeavesFresh(t *testing.T) {
	lc := Lifecycle{Name: "visual_crossing"}

	runs := 0
	if err := lc.RunTeardown(func() error { runs++; return nil }); err != nil {
		t.Fatalf("RunTeardown on fresh provider: %v", err)
	}
	if runs != 0 {
		t.Errorf("teardown body must not run before setup, ran %d times", runs)
	}

	// A stray early teardown must not block the real setup.
	if err := lc.RunSetup(func() error { return nil }); err != nil {
		t.Errorf("setup after a stray teardown should work, got %v", err)
	}
}

func TestLifecycleSetupErrorLeavesFresh(t *testing.T) {
	lc := Lifecycle{Name: "open_weather_map"}

	boom := errors.New("manifest fetch failed")
	if err := lc.RunSetup(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected setup error to propagate, got %v", err)
	}

	// A failed setup may be retried.
	if err := lc.RunSetup(func() error { return nil }); err != nil {
		t.Errorf("retrying setup after a failure should work, got %v", err)
	}
}

func TestKmhToMs(t *testing.T) {
	tests := []struct {
		name     string
		kmh      float64
		expected float64
	}{
		{name: "zero", kmh: 0, expected: 0},
		{name: "typical breeze", kmh: 18.4, expected: 5.11},
		{name: "rounds half up", kmh: 3.6, expected: 1.0},
		{name: "storm gust", kmh: 120, expected: 33.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KmhToMs(tt.kmh)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %.2f m/s, got %v", tt.expected, got)
			}
		})
	}
}

func TestCmToMm(t *testing.T) {
	tests := []struct {
		name     string
		cm       float64
		expected int
	}{
		{name: "zero", cm: 0, expected: 0},
		{name: "whole centimeters", cm: 3, expected: 30},
		{name: "fractional depth", cm: 1.26, expected: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CmToMm(tt.cm); got != tt.expected {
				t.Errorf("expected %d mm, got %d", tt.expected, got)
			}
		})
	}
}
