package features

import (
	"math"
	"testing"
)

func TestScalerTransform(t *testing.T) {
	scaler := NewScaler(TrainingScalerParams())

	t.Run("KnownFeature", func(t *testing.T) {
		got := scaler.Transform("Amount", 149.62)
		want := (149.62 - 88.35) / 250.12
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Transform(Amount, 149.62) = %f, want %f", got, want)
		}
	})

	t.Run("UnknownFeaturePassesThrough", func(t *testing.T) {
		if got := scaler.Transform("V7", 3.25); got != 3.25 {
			t.Errorf("unknown feature should pass through, got %f", got)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		for _, v := range []float64{0, 1, 88.35, 149.62, 25000} {
			scaled := scaler.Transform("Amount", v)
			back := scaler.InverseTransform("Amount", scaled)
			if math.Abs(back-v) > 1e-9 {
				t.Errorf("round trip of %f drifted to %f", v, back)
			}
		}
	})
}

func TestScalerFit(t *testing.T) {
	scaler := NewScaler(nil)
	scaler.Fit("x", []float64{2, 4, 6, 8})

	mean, std, ok := scaler.Params("x")
	if !ok {
		t.Fatal("expected fitted params")
	}
	if mean != 5 {
		t.Errorf("mean = %f, want 5", mean)
	}
	if math.Abs(std-math.Sqrt(5)) > 1e-12 {
		t.Errorf("std = %f, want %f", std, math.Sqrt(5))
	}

	t.Run("EmptySamplesIgnored", func(t *testing.T) {
		scaler.Fit("y", nil)
		if _, _, ok := scaler.Params("y"); ok {
			t.Error("fitting on no samples should be a no-op")
		}
	})
}

func TestScalerZeroStd(t *testing.T) {
	scaler := NewScaler(nil)
	scaler.Fit("flat", []float64{7, 7, 7})

	if got := scaler.Transform("flat", 7); got != 0 {
		t.Errorf("zero-std transform should collapse to 0, got %f", got)
	}
	if got := scaler.Transform("flat", 99); got != 0 {
		t.Errorf("zero-std transform should collapse to 0 for any value, got %f", got)
	}
	if got := scaler.InverseTransform("flat", 0); got != 7 {
		t.Errorf("zero-std inverse should return the mean, got %f", got)
	}
}
