package inference

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func validArtifactJSON(t *testing.T) string {
	t.Helper()
	weights := "["
	for c := 0; c < 2; c++ {
		if c > 0 {
			weights += ","
		}
		weights += "[0"
		for i := 1; i < domain.VectorSize; i++ {
			weights += ",0"
		}
		weights += "]"
	}
	weights += "]"
	return `{"name":"disk-model","version":"2.1.0","weights":` + weights + `,"bias":[0.5,-0.5]}`
}

func TestFileLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyPathUsesEmbedded", func(t *testing.T) {
		fn, info, err := FileLoader("")(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if info.Source != "embedded" || info.Name != "fraud-detector-demo" {
			t.Errorf("unexpected info: %+v", info)
		}
		if fn == nil {
			t.Fatal("expected a model function")
		}
	})

	t.Run("ValidFile", func(t *testing.T) {
		path := writeArtifact(t, validArtifactJSON(t))
		fn, info, err := FileLoader(path)(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if info.Source != "file" || info.Name != "disk-model" || info.Version != "2.1.0" {
			t.Errorf("unexpected info: %+v", info)
		}

		// Zero weights, bias [0.5, -0.5]: the normal class dominates.
		rows, err := fn(ctx, [][]float64{make([]float64, domain.VectorSize)})
		if err != nil {
			t.Fatalf("model call failed: %v", err)
		}
		if rows[0][0] <= rows[0][1] {
			t.Errorf("expected normal to dominate: %v", rows[0])
		}
	})

	t.Run("MissingFileFailsLoad", func(t *testing.T) {
		if _, _, err := FileLoader("/nonexistent/model.json")(ctx); err == nil {
			t.Error("configured but unreadable path must fail, not fall back")
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		path := writeArtifact(t, "{not json")
		if _, _, err := FileLoader(path)(ctx); err == nil {
			t.Error("malformed artifact must fail the load")
		}
	})

	t.Run("WrongClassCount", func(t *testing.T) {
		path := writeArtifact(t, `{"name":"x","weights":[[0]],"bias":[0]}`)
		if _, _, err := FileLoader(path)(ctx); err == nil {
			t.Error("single-class artifact must fail validation")
		}
	})

	t.Run("WrongRowWidth", func(t *testing.T) {
		path := writeArtifact(t, `{"name":"x","weights":[[0,0],[0,0]],"bias":[0,0]}`)
		if _, _, err := FileLoader(path)(ctx); err == nil {
			t.Error("short weight rows must fail validation")
		}
	})
}

func TestModelFunc(t *testing.T) {
	ctx := context.Background()
	fn := demoModel.modelFunc()

	t.Run("OutputsAreProbabilities", func(t *testing.T) {
		row := make([]float64, domain.VectorSize)
		row[14] = -5 // strongly fraud-negative component

		rows, err := fn(ctx, [][]float64{row})
		if err != nil {
			t.Fatalf("model call failed: %v", err)
		}
		p0, p1 := rows[0][0], rows[0][1]
		if p0 < 0 || p0 > 1 || p1 < 0 || p1 > 1 {
			t.Errorf("outputs not probabilities: [%f, %f]", p0, p1)
		}
		if math.Abs(p0+p1-1) > 1e-12 {
			t.Errorf("probabilities sum to %f", p0+p1)
		}
	})

	t.Run("NegativeV14RaisesFraudProbability", func(t *testing.T) {
		baseline := make([]float64, domain.VectorSize)
		suspect := make([]float64, domain.VectorSize)
		suspect[14] = -6 // weight is negative, so a negative value adds to the logit

		base, _ := fn(ctx, [][]float64{baseline})
		hot, _ := fn(ctx, [][]float64{suspect})
		if hot[0][1] <= base[0][1] {
			t.Errorf("fraud probability should rise: %f vs %f", hot[0][1], base[0][1])
		}
	})

	t.Run("WrongWidthRejected", func(t *testing.T) {
		if _, err := fn(ctx, [][]float64{{1, 2, 3}}); err == nil {
			t.Error("short input rows must be rejected")
		}
	})

	t.Run("BatchPreserved", func(t *testing.T) {
		batch := [][]float64{
			make([]float64, domain.VectorSize),
			make([]float64, domain.VectorSize),
		}
		rows, err := fn(ctx, batch)
		if err != nil {
			t.Fatalf("batch call failed: %v", err)
		}
		if len(rows) != 2 {
			t.Errorf("expected 2 rows, got %d", len(rows))
		}
	})
}

func TestSoftmax2(t *testing.T) {
	t.Run("EqualLogits", func(t *testing.T) {
		p := softmax2([2]float64{3, 3})
		if math.Abs(p[0]-0.5) > 1e-12 || math.Abs(p[1]-0.5) > 1e-12 {
			t.Errorf("equal logits should split evenly: %v", p)
		}
	})

	t.Run("LargeLogitsStayFinite", func(t *testing.T) {
		p := softmax2([2]float64{1000, 990})
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
			t.Errorf("softmax overflowed: %v", p)
		}
		if math.Abs(p[0]+p[1]-1) > 1e-12 {
			t.Errorf("probabilities sum to %f", p[0]+p[1])
		}
	})
}
