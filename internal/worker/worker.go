// Package worker provides async transaction scoring from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Worker consumes transactions published to the received topic, scores them
// through the shared scoring service, and lets the service publish decisions
// and alerts.
type Worker struct {
	bus     domain.EventBus
	service *scoring.Service
	logger  *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates an async worker.
func NewWorker(bus domain.EventBus, service *scoring.Service, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		logger:  logger.With("component", "worker"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the transaction topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionReceived, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", domain.TopicTransactionReceived, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("worker started", "topic", domain.TopicTransactionReceived)
	return nil
}

// Stop cancels the subscriptions and stops processing.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil
	w.cancel()
	w.logger.Info("worker stopped")
}

// handleMessage scores one published transaction. Malformed payloads and
// validation rejections are logged and dropped; there is no caller to
// surface them to.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.TransactionRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		w.logger.Error("invalid transaction timestamp",
			"message_id", msg.ID,
			"timestamp", req.Timestamp,
			"error", err,
		)
		return err
	}

	tx := req.ToTransaction(uuid.New().String(), ts)

	result, _, err := w.service.Score(ctx, domain.NewRawInput(tx), domain.ScoreOptions{UseCache: true})
	if err != nil {
		w.logger.Error("async scoring failed",
			"tx_id", tx.ID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.logger.Info("transaction scored",
		"tx_id", tx.ID,
		"prediction_id", result.ID,
		"label", result.Label,
		"risk_level", result.RiskLevel,
		"cached", result.Cached,
		"process_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
