// Package worker consumes verdict events off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Worker persists scored predictions to the audit log and raises
// recurring-fraud alerts.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	alerts    atomic.Int64
}

// NewWorker creates a worker. repo may be nil, in which case predictions
// are only inspected for alerts.
func NewWorker(bus domain.EventBus, repo domain.Repository) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to scored predictions.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicPredictionScored, w.handleScored)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", domain.TopicPredictionScored, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("audit worker started", "topic", domain.TopicPredictionScored)
	return nil
}

func (w *Worker) handleScored(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var rec domain.PredictionRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse prediction event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if rec.TraceID == "" {
		rec.TraceID = msg.Metadata["trace_id"]
	}

	if w.repo != nil {
		if err := w.repo.SavePrediction(ctx, &rec); err != nil {
			w.failed.Add(1)
			slog.Error("failed to save prediction",
				"prediction_id", rec.ID,
				"upi_id", rec.UPIID,
				"error", err,
			)
			return err
		}
	}

	if rec.Fraud && rec.RecurringFraud {
		w.publishAlert(ctx, &rec)
	}

	w.processed.Add(1)
	slog.Debug("prediction audited",
		"prediction_id", rec.ID,
		"upi_id", rec.UPIID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) publishAlert(ctx context.Context, rec *domain.PredictionRecord) {
	alert := domain.RecurringAlert{
		PredictionID: rec.ID,
		UPIID:        rec.UPIID,
		FraudCount:   rec.FraudCount,
		RiskScore:    rec.RiskScore,
		ModelUsed:    rec.ModelUsed,
		TraceID:      rec.TraceID,
		DetectedAt:   rec.CreatedAt,
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		slog.Error("failed to encode recurring alert", "prediction_id", rec.ID, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, domain.TopicRecurringFraud, payload); err != nil {
		slog.Error("failed to publish recurring alert",
			"prediction_id", rec.ID,
			"error", err,
		)
		return
	}

	w.alerts.Add(1)
	slog.Warn("recurring fraud",
		"upi_id", rec.UPIID,
		"fraud_count", rec.FraudCount,
		"prediction_id", rec.ID,
	)
}

// Stop unsubscribes and stops processing.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("audit worker stopped")
	return nil
}

// Stats holds worker counters.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Alerts            int64    `json:"alerts"`
}

// Stats returns current worker statistics.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Alerts:            w.alerts.Load(),
	}
}
