// Package scoring runs the prediction pipeline: model selection, feature
// construction, classification, history update, recurrence check,
// explanation and response assembly.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fraudguard/internal/bus"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/explain"
	"github.com/opensource-finance/fraudguard/internal/features"
	"github.com/opensource-finance/fraudguard/internal/history"
	"github.com/opensource-finance/fraudguard/internal/model"
)

var tracer = otel.Tracer("fraudguard-scoring")

// RiskScorePlaces is the number of decimal places kept in risk_score.
const RiskScorePlaces = 4

// Recorder receives pipeline measurements.
type Recorder interface {
	ObservePrediction(requested, used string, fraud bool, d time.Duration)
	ObserveHistoryWrite(err error)
}

// Options holds the optional collaborators of a Service.
type Options struct {
	// RecurringThreshold overrides history.DefaultRecurringThreshold.
	RecurringThreshold int64

	// Explainer produces explanation text. Nil omits explanations.
	Explainer *explain.Client

	// Bus receives a PredictionRecord per verdict. Nil disables events.
	Bus domain.EventBus

	Recorder Recorder
}

// Service scores transactions.
type Service struct {
	registry *model.Registry
	engine   *model.Engine
	history  domain.HistoryStore
	opts     Options
	now      func() time.Time
}

// New creates a scoring service.
func New(registry *model.Registry, engine *model.Engine, store domain.HistoryStore, opts Options) *Service {
	if opts.RecurringThreshold <= 0 {
		opts.RecurringThreshold = history.DefaultRecurringThreshold
	}
	return &Service{
		registry: registry,
		engine:   engine,
		history:  store,
		opts:     opts,
		now:      time.Now,
	}
}

// Predict scores in and returns the assembled result. Model, prediction and
// history failures are returned as errors; explanation failures only
// change the explanation text.
func (s *Service) Predict(ctx context.Context, in *domain.TransactionInput) (*domain.PredictionResult, error) {
	start := s.now()
	ctx, span := tracer.Start(ctx, "predict",
		trace.WithAttributes(
			attribute.String("mode.requested", string(in.Mode)),
			attribute.String("language", string(in.Language)),
		),
	)
	defer span.End()

	used, clf, err := s.registry.Select(in.Mode)
	if err != nil {
		return nil, fail(span, err)
	}
	if used != in.Mode {
		slog.Warn("requested model not loaded, falling back",
			"requested", in.Mode,
			"model_used", used,
		)
	}

	vec := features.Build(in, used)
	verdict, err := s.engine.Predict(ctx, used, clf, vec)
	if err != nil {
		return nil, fail(span, err)
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.ObservePrediction(string(in.Mode), string(used), verdict.Fraud, verdict.Duration)
	}

	rec, err := s.history.RecordOutcome(ctx, in.UPIID, verdict.Fraud)
	if s.opts.Recorder != nil {
		s.opts.Recorder.ObserveHistoryWrite(err)
	}
	if err != nil {
		slog.Error("fraud history update failed",
			"upi_id", in.UPIID,
			"error", err,
		)
		return nil, fail(span, err)
	}
	recurring := history.IsRecurring(rec.FraudCount, s.opts.RecurringThreshold)

	var explanation *string
	if s.opts.Explainer != nil {
		text := s.opts.Explainer.Explain(ctx, domain.NewExplanationRequest(in, verdict.Fraud, verdict.Probability))
		explanation = &text
	}

	result := Assemble(uuid.New().String(), used, verdict, rec, recurring, explanation)

	span.SetAttributes(
		attribute.String("model.used", string(used)),
		attribute.Bool("fraud", result.Fraud),
		attribute.Bool("recurring", result.RecurringFraud),
	)
	slog.Info("transaction scored",
		"prediction_id", result.PredictionID,
		"upi_id", in.UPIID,
		"model_used", used,
		"fraud", result.Fraud,
		"risk_score", result.RiskScore,
		"fraud_count", result.FraudCount,
		"recurring_fraud", result.RecurringFraud,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)

	s.publish(ctx, in, vec, result, start)
	return result, nil
}

// Assemble composes the API result. The risk score is P(fraud) rounded to
// RiskScorePlaces.
func Assemble(id string, used domain.Mode, v *model.Verdict, rec *domain.HistoryRecord, recurring bool, explanation *string) *domain.PredictionResult {
	return &domain.PredictionResult{
		PredictionID:   id,
		Fraud:          v.Fraud,
		RiskScore:      RoundRiskScore(v.Probability),
		ModelUsed:      used,
		RecurringFraud: recurring,
		FraudCount:     rec.FraudCount,
		Explanation:    explanation,
	}
}

// RoundRiskScore rounds p half away from zero to RiskScorePlaces.
func RoundRiskScore(p float64) float64 {
	f, _ := decimal.NewFromFloat(p).Round(RiskScorePlaces).Float64()
	return f
}

func (s *Service) publish(ctx context.Context, in *domain.TransactionInput, vec []float64, res *domain.PredictionResult, start time.Time) {
	if s.opts.Bus == nil {
		return
	}

	now := s.now()
	record := domain.PredictionRecord{
		ID:             res.PredictionID,
		UPIID:          in.UPIID,
		RequestedMode:  in.Mode,
		ModelUsed:      res.ModelUsed,
		Language:       in.Language,
		Features:       vec,
		Fraud:          res.Fraud,
		RiskScore:      res.RiskScore,
		RecurringFraud: res.RecurringFraud,
		FraudCount:     res.FraudCount,
		TraceID:        traceID(ctx),
		DurationMs:     now.Sub(start).Milliseconds(),
		CreatedAt:      now.UTC(),
	}
	if res.Explanation != nil {
		record.Explanation = *res.Explanation
	}

	payload, err := json.Marshal(record)
	if err != nil {
		slog.Error("failed to encode prediction event", "prediction_id", record.ID, "error", err)
		return
	}
	// the verdict is already final; a lost event only loses its audit row
	pubCtx := bus.WithMetadata(context.WithoutCancel(ctx), map[string]string{
		"trace_id":      record.TraceID,
		"prediction_id": record.ID,
	})
	if err := s.opts.Bus.Publish(pubCtx, domain.TopicPredictionScored, payload); err != nil {
		slog.Error("failed to publish prediction event",
			"prediction_id", record.ID,
			"error", err,
		)
	}
}

func traceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.TraceID().IsValid() {
		return sc.TraceID().String()
	}
	return domain.TraceID(ctx)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("scoring: %w", err)
}
