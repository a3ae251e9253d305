package features

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(domain.DefaultReferenceEpoch, domain.NoopHistory{})
}

func TestPipelineRawInput(t *testing.T) {
	pipeline := newTestPipeline()
	ctx := context.Background()

	tx := &domain.RawTransaction{
		ID:        "tx-raw",
		Timestamp: domain.DefaultReferenceEpoch.Add(406 * time.Second),
		Amount:    149.62,
		Country:   "US",
		Channel:   "pos",
	}

	vec, set, err := pipeline.Process(ctx, domain.NewRawInput(tx))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if set == nil {
		t.Fatal("raw input must produce a feature set")
	}

	wantTime := pipeline.Scaler().Transform("Time", 406)
	if math.Abs(vec[domain.SlotTime]-wantTime) > 1e-12 {
		t.Errorf("time slot = %f, want %f", vec[domain.SlotTime], wantTime)
	}

	wantAmount := pipeline.Scaler().Transform("Amount", 149.62)
	if math.Abs(vec[domain.SlotAmount]-wantAmount) > 1e-12 {
		t.Errorf("amount slot = %f, want %f", vec[domain.SlotAmount], wantAmount)
	}

	for i, baseline := range baselineComponents {
		if vec[domain.SlotV1+i] != baseline {
			t.Errorf("V%d = %f, want baseline %f", i+1, vec[domain.SlotV1+i], baseline)
		}
	}

	if set.Amount.ScaledAmount != vec[domain.SlotAmount] {
		t.Error("feature set and vector disagree on the scaled amount")
	}
}

func TestPipelineProcessedPassthrough(t *testing.T) {
	pipeline := newTestPipeline()

	var vec domain.FeatureVector
	vec[domain.SlotTime] = -1.234
	vec[domain.SlotV1] = 0.5
	vec[domain.SlotAmount] = 2.1

	got, set, err := pipeline.Process(context.Background(), domain.NewProcessedInput(&vec))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if set != nil {
		t.Error("pre-processed input must not fabricate features")
	}
	if *got != vec {
		t.Error("pre-processed vectors must pass through unchanged")
	}
}

func TestPipelineValidation(t *testing.T) {
	pipeline := newTestPipeline()
	ctx := context.Background()

	t.Run("MissingTimestamp", func(t *testing.T) {
		_, _, err := pipeline.Process(ctx, domain.NewRawInput(&domain.RawTransaction{Amount: 10}))

		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if len(verr.Fields) != 1 || verr.Fields[0].Field != "timestamp" {
			t.Errorf("expected timestamp field error, got %+v", verr.Fields)
		}
	})

	t.Run("NegativeAmountReportedAlongside", func(t *testing.T) {
		_, _, err := pipeline.Process(ctx, domain.NewRawInput(&domain.RawTransaction{Amount: -1}))

		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if len(verr.Fields) != 2 {
			t.Errorf("expected both fields reported, got %+v", verr.Fields)
		}
	})

	t.Run("NilTransaction", func(t *testing.T) {
		_, _, err := pipeline.Process(ctx, domain.Input{Kind: domain.InputRaw})
		if err == nil {
			t.Error("nil transaction must fail")
		}
	})

	t.Run("NilVector", func(t *testing.T) {
		_, _, err := pipeline.Process(ctx, domain.Input{Kind: domain.InputProcessed})
		if err == nil {
			t.Error("nil vector must fail")
		}
	})

	t.Run("NonFiniteVector", func(t *testing.T) {
		var vec domain.FeatureVector
		vec[domain.SlotV1+2] = math.NaN()

		_, _, err := pipeline.Process(ctx, domain.NewProcessedInput(&vec))
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestPipelineProcessBatch(t *testing.T) {
	pipeline := newTestPipeline()

	good := domain.NewRawInput(&domain.RawTransaction{
		Timestamp: domain.DefaultReferenceEpoch.Add(time.Hour),
		Amount:    50,
	})
	bad := domain.NewRawInput(&domain.RawTransaction{Amount: 50})

	items := pipeline.ProcessBatch(context.Background(), []domain.Input{good, bad, good})

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Error("valid items must not error")
	}
	if items[1].Err == nil {
		t.Error("invalid item must carry its error in place")
	}
	if items[1].Index != 1 {
		t.Errorf("input order must be preserved, got index %d", items[1].Index)
	}
	if items[1].Vector != nil {
		t.Error("failed item must not carry a vector")
	}
}
