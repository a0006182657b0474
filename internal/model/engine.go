package model

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Verdict is the outcome of one classifier run.
type Verdict struct {
	Fraud       bool
	Probability float64
	Duration    time.Duration
}

// Engine runs classifiers and enforces the accurate-mode latency floor.
type Engine struct {
	latencyFloor time.Duration
}

// NewEngine creates an engine. A zero floor disables the minimum latency.
func NewEngine(accurateLatencyFloor time.Duration) *Engine {
	if accurateLatencyFloor < 0 {
		accurateLatencyFloor = 0
	}
	return &Engine{latencyFloor: accurateLatencyFloor}
}

// Predict scores vec with clf. The fraud flag comes from the label and the
// probability is P(fraud). Accurate-mode calls take at least the configured
// floor; the wait holds no locks and ends early if ctx is cancelled.
func (e *Engine) Predict(ctx context.Context, mode domain.Mode, clf Classifier, vec []float64) (*Verdict, error) {
	start := time.Now()

	label, err := clf.Predict(vec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPredictionFailed, err)
	}
	proba, err := clf.PredictProba(vec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPredictionFailed, err)
	}
	idx := classIndex(clf.Classes(), PositiveClass)
	if idx < 0 || idx >= len(proba) {
		return nil, fmt.Errorf("%w: classifier has no fraud class", domain.ErrPredictionFailed)
	}

	if mode == domain.ModeAccurate && e.latencyFloor > 0 {
		if remaining := e.latencyFloor - time.Since(start); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
	}

	return &Verdict{
		Fraud:       label == PositiveClass,
		Probability: proba[idx],
		Duration:    time.Since(start),
	}, nil
}
