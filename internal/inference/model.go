// Package inference owns the loaded model handle, the prediction cache and
// the performance counters, and exposes single and batch scoring with
// deterministic post-processing into a risk decision.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ModelInfo describes the loaded model artifact.
type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Source  string `json:"source"` // "file" or "embedded"
}

// Loader produces the opaque model function. Loading is I/O bound and may
// suspend; it completes before the engine enters Ready.
type Loader func(ctx context.Context) (domain.ModelFunc, ModelInfo, error)

// modelArtifact is the serialized linear classifier format: one weight row
// per class over the 30 input slots, plus a per-class bias. Probabilities
// come from a softmax over the class logits.
type modelArtifact struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

func (a *modelArtifact) validate() error {
	if len(a.Weights) != 2 || len(a.Bias) != 2 {
		return fmt.Errorf("artifact must define 2 classes, got %d weight rows and %d biases", len(a.Weights), len(a.Bias))
	}
	for i, row := range a.Weights {
		if len(row) != domain.VectorSize {
			return fmt.Errorf("class %d weight row has %d entries, want %d", i, len(row), domain.VectorSize)
		}
	}
	return nil
}

// modelFunc builds the vector-in, probability-pair-out closure.
func (a *modelArtifact) modelFunc() domain.ModelFunc {
	return func(ctx context.Context, batch [][]float64) ([][]float64, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := make([][]float64, len(batch))
		for i, row := range batch {
			if len(row) != domain.VectorSize {
				return nil, fmt.Errorf("input row %d has %d features, want %d", i, len(row), domain.VectorSize)
			}
			logits := [2]float64{a.Bias[0], a.Bias[1]}
			for k := 0; k < 2; k++ {
				for j, x := range row {
					logits[k] += a.Weights[k][j] * x
				}
			}
			out[i] = softmax2(logits)
		}
		return out, nil
	}
}

func softmax2(logits [2]float64) []float64 {
	m := math.Max(logits[0], logits[1])
	e0 := math.Exp(logits[0] - m)
	e1 := math.Exp(logits[1] - m)
	sum := e0 + e1
	return []float64{e0 / sum, e1 / sum}
}

// FileLoader loads the model artifact from disk. An empty path falls back
// to the embedded demo coefficients; a configured path that cannot be read
// or parsed fails the load, leaving the engine retryable.
func FileLoader(path string) Loader {
	return func(ctx context.Context) (domain.ModelFunc, ModelInfo, error) {
		if path == "" {
			return demoModel.modelFunc(), ModelInfo{
				Name:    demoModel.Name,
				Version: demoModel.Version,
				Source:  "embedded",
			}, nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ModelInfo{}, fmt.Errorf("read artifact %s: %w", path, err)
		}

		var artifact modelArtifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, ModelInfo{}, fmt.Errorf("parse artifact %s: %w", path, err)
		}
		if err := artifact.validate(); err != nil {
			return nil, ModelInfo{}, fmt.Errorf("invalid artifact %s: %w", path, err)
		}

		return artifact.modelFunc(), ModelInfo{
			Name:    artifact.Name,
			Version: artifact.Version,
			Source:  "file",
		}, nil
	}
}

// StaticLoader wraps an already-built model function, used for tests and
// for plugging in alternative model backends.
func StaticLoader(fn domain.ModelFunc, info ModelInfo) Loader {
	return func(ctx context.Context) (domain.ModelFunc, ModelInfo, error) {
		return fn, info, nil
	}
}

// demoModel carries hand-tuned coefficients usable without a trained
// artifact. The dominant negative weights sit on the components that
// separate fraud in the training data (V14, V17, V12, V10).
var demoModel = modelArtifact{
	Name:    "fraud-detector-demo",
	Version: "embedded-1",
	Bias:    []float64{0, -3.2},
	Weights: [][]float64{
		make([]float64, domain.VectorSize),
		demoFraudWeights(),
	},
}

func demoFraudWeights() []float64 {
	w := make([]float64, domain.VectorSize)
	w[domain.SlotTime] = 0.05
	w[4] = 0.35   // V4
	w[11] = 0.25  // V11
	w[10] = -0.45 // V10
	w[12] = -0.55 // V12
	w[14] = -0.95 // V14
	w[17] = -0.70 // V17
	w[domain.SlotAmount] = 0.15
	return w
}
