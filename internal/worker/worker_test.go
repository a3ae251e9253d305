package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

type stubScorer struct {
	probFraud float64
}

func (s *stubScorer) Score(ctx context.Context, vec *domain.FeatureVector, opts domain.ScoreOptions) (*domain.PredictionResult, error) {
	return &domain.PredictionResult{
		ID:                "pred-test",
		Label:             domain.LabelNormal,
		Confidence:        1 - s.probFraud,
		ProbabilityFraud:  s.probFraud,
		ProbabilityNormal: 1 - s.probFraud,
		RiskLevel:         domain.RiskLevelFromProbability(s.probFraud),
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func (s *stubScorer) Ping(ctx context.Context) error { return nil }

func newTestService(eventBus domain.EventBus) *scoring.Service {
	pipeline := features.NewPipeline(domain.DefaultReferenceEpoch, domain.NoopHistory{})
	return scoring.NewService(pipeline, &stubScorer{probFraud: 0.05}, nil, nil, eventBus, nil)
}

func TestWorkerScoresPublishedTransactions(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, newTestService(eventBus), nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	decisionCh := make(chan *domain.PredictionResult, 1)
	_, err := eventBus.Subscribe(context.Background(), domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		var result domain.PredictionResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return err
		}
		select {
		case decisionCh <- &result:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	payload, _ := json.Marshal(domain.TransactionRequest{
		Timestamp: "2024-01-15T03:15:00Z",
		Amount:    2500.00,
		Country:   "NG",
		Channel:   "online",
	})
	if err := eventBus.Publish(context.Background(), domain.TopicTransactionReceived, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case result := <-decisionCh:
		if result.Label != domain.LabelNormal {
			t.Errorf("unexpected label %s", result.Label)
		}
		if result.TxID == "" {
			t.Error("expected decision to carry a transaction ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for decision event")
	}
}

func TestWorkerDropsMalformedPayloads(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	var decisions atomic.Int32
	eventBus.Subscribe(context.Background(), domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions.Add(1)
		return nil
	})

	w := NewWorker(eventBus, newTestService(eventBus), nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()
	time.Sleep(10 * time.Millisecond)

	eventBus.Publish(context.Background(), domain.TopicTransactionReceived, []byte("not json"))
	eventBus.Publish(context.Background(), domain.TopicTransactionReceived, []byte(`{"timestamp":"not-a-time","amount":5}`))
	time.Sleep(100 * time.Millisecond)

	if decisions.Load() != 0 {
		t.Errorf("malformed payloads must not produce decisions, got %d", decisions.Load())
	}
}

func TestWorkerStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	var decisions atomic.Int32
	eventBus.Subscribe(context.Background(), domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions.Add(1)
		return nil
	})

	w := NewWorker(eventBus, newTestService(eventBus), nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Stop()
	time.Sleep(10 * time.Millisecond)

	payload, _ := json.Marshal(domain.TransactionRequest{
		Timestamp: "2024-01-15T12:00:00Z",
		Amount:    10,
	})
	eventBus.Publish(context.Background(), domain.TopicTransactionReceived, payload)
	time.Sleep(100 * time.Millisecond)

	if decisions.Load() != 0 {
		t.Errorf("stopped worker must not score, got %d decisions", decisions.Load())
	}
}
