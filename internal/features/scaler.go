// Package features turns raw transactions into the fixed-width numeric
// vectors the fraud model expects.
package features

import (
	"math"
)

// ScalerParams maps a feature name to the (mean, std) captured at training
// time. The mapping is loaded once at construction and never mutated.
type ScalerParams map[string]struct {
	Mean float64
	Std  float64
}

// TrainingScalerParams are the standardization statistics captured when the
// production model was trained. Production scoring always uses this fixed
// set so inference-time scaling is bit-compatible with training.
func TrainingScalerParams() ScalerParams {
	return ScalerParams{
		"Time":   {Mean: 94813.86, Std: 47488.15},
		"Amount": {Mean: 88.35, Std: 250.12},
	}
}

// Scaler applies the z-score transform using fixed per-feature statistics.
// Unknown feature names scale as (mean=0, std=1), a deliberate leniency that
// tolerates partial parameter sets instead of failing the request.
type Scaler struct {
	params ScalerParams
}

// NewScaler creates a scaler over a fixed parameter set.
func NewScaler(params ScalerParams) *Scaler {
	if params == nil {
		params = ScalerParams{}
	}
	return &Scaler{params: params}
}

// Fit computes (mean, std) for a feature from raw samples. Production use
// loads the fixed training-time set instead; Fit exists so the two paths
// stay interchangeable and produce identical transforms for the same stats.
func (s *Scaler) Fit(name string, samples []float64) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	var sqDiff float64
	for _, v := range samples {
		d := v - mean
		sqDiff += d * d
	}
	std := math.Sqrt(sqDiff / float64(len(samples)))

	s.params[name] = struct {
		Mean float64
		Std  float64
	}{Mean: mean, Std: std}
}

// Transform returns (value - mean) / std for the named feature. A zero std
// collapses the feature to 0 rather than dividing by zero.
func (s *Scaler) Transform(name string, value float64) float64 {
	p, ok := s.params[name]
	if !ok {
		return value // mean 0, std 1
	}
	if p.Std == 0 {
		return 0
	}
	return (value - p.Mean) / p.Std
}

// InverseTransform is the algebraic inverse of Transform. When std is zero
// the forward transform is lossy and the inverse returns the mean.
func (s *Scaler) InverseTransform(name string, scaled float64) float64 {
	p, ok := s.params[name]
	if !ok {
		return scaled
	}
	if p.Std == 0 {
		return p.Mean
	}
	return scaled*p.Std + p.Mean
}

// Params returns the parameter pair for a feature and whether it exists.
func (s *Scaler) Params(name string) (mean, std float64, ok bool) {
	p, found := s.params[name]
	if !found {
		return 0, 1, false
	}
	return p.Mean, p.Std, true
}
