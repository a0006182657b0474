// Package explain produces human-readable explanations of fraud verdicts.
// Backends share one contract; the Client wraps any of them with a timeout
// and fixed fallback messages so explanation failures never fail a
// prediction.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Backend generates an explanation for a finalized verdict.
type Backend interface {
	Explain(ctx context.Context, req domain.ExplanationRequest) (string, error)
}

// Fallback messages, one per failure kind.
const (
	FallbackTimeout     = "Explanation service timed out."
	FallbackUnreachable = "AI explanation service is currently unavailable."
	FallbackBackend     = "Explanation service returned an error."
)

// Outcome labels reported to an Observer.
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeUnreachable = "unreachable"
	OutcomeBackend     = "backend_error"
)

// Observer receives the outcome and duration of every call.
type Observer interface {
	ObserveExplanation(outcome string, d time.Duration)
}

var tracer = otel.Tracer("fraudguard-explain")

// Client makes one bounded attempt per request and never returns an error.
type Client struct {
	backend  Backend
	timeout  time.Duration
	observer Observer
}

// NewClient wraps backend. A non-positive timeout uses
// domain.DefaultExplanationTimeout.
func NewClient(backend Backend, timeout time.Duration, observer Observer) *Client {
	if timeout <= 0 {
		timeout = domain.DefaultExplanationTimeout
	}
	return &Client{backend: backend, timeout: timeout, observer: observer}
}

// Explain returns the backend's text, or the fallback for the failure kind.
func (c *Client) Explain(ctx context.Context, req domain.ExplanationRequest) string {
	ctx, span := tracer.Start(ctx, "explain",
		trace.WithAttributes(
			attribute.Bool("fraud", req.IsFraud),
			attribute.String("language", string(req.Language)),
		),
	)
	defer span.End()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := c.backend.Explain(callCtx, req)
		done <- result{text, err}
	}()

	var text string
	var err error
	select {
	case r := <-done:
		text, err = r.text, r.err
	case <-callCtx.Done():
		// a backend that ignores ctx is abandoned here
		err = callCtx.Err()
	}
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: empty explanation", domain.ErrExplanationBackend)
	}

	outcome, message := OutcomeOK, text
	if err != nil {
		outcome, message = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		slog.Warn("explanation fallback",
			"outcome", outcome,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	span.SetAttributes(attribute.String("outcome", outcome))

	if c.observer != nil {
		c.observer.ObserveExplanation(outcome, time.Since(start))
	}
	return message
}

func classify(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrExplanationTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout, FallbackTimeout
	case errors.Is(err, domain.ErrExplanationUnreachable), errors.Is(err, context.Canceled):
		return OutcomeUnreachable, FallbackUnreachable
	default:
		return OutcomeBackend, FallbackBackend
	}
}

// HTTPBackend calls a remote explanation service.
type HTTPBackend struct {
	endpoint string
	client   *http.Client
}

// NewHTTPBackend targets baseURL. A base URL already ending in /explain is
// used as is.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/explain") {
		endpoint += "/explain"
	}
	return &HTTPBackend{endpoint: endpoint, client: &http.Client{}}
}

// Endpoint is the resolved POST target.
func (b *HTTPBackend) Endpoint() string { return b.endpoint }

// Name identifies the backend.
func (b *HTTPBackend) Name() string { return domain.TransportHTTP }

// Explain posts req and maps transport failures onto the explanation error
// taxonomy.
func (b *HTTPBackend) Explain(ctx context.Context, req domain.ExplanationRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExplanationBackend, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExplanationUnreachable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w: %v", domain.ErrExplanationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrExplanationUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", domain.ErrExplanationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrExplanationBackend, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", domain.ErrExplanationBackend, resp.StatusCode)
	}

	var out domain.ExplanationResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExplanationBackend, err)
	}
	return out.Explanation, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
