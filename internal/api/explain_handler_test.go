package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/explain"
	"github.com/opensource-finance/fraudguard/internal/metrics"
)

type explainFunc func(ctx context.Context, req domain.ExplanationRequest) (string, error)

func (f explainFunc) Explain(ctx context.Context, req domain.ExplanationRequest) (string, error) {
	return f(ctx, req)
}

func newExplainServer(t *testing.T, limit float64, burst int) *Server {
	t.Helper()
	backend, err := explain.NewTemplateBackend(explain.DefaultCatalog())
	if err != nil {
		t.Fatalf("NewTemplateBackend failed: %v", err)
	}
	cfg := domain.ExplainServerConfig{RateLimit: limit, RateBurst: burst}
	return NewExplainServer(cfg, NewExplainHandler(backend, backend.Name()), metrics.New())
}

func explanationRequest() domain.ExplanationRequest {
	return domain.ExplanationRequest{
		Amount:               9000,
		AmountDeviation:      0.9,
		TimeAnomaly:          0.1,
		LocationDistance:     50,
		MerchantNovelty:      0.2,
		TransactionFrequency: 2,
		IsFraud:              true,
		RiskScore:            0.8765,
	}
}

func TestExplainEndpoint(t *testing.T) {
	server := newExplainServer(t, 0, 0)
	router := server.Router()

	t.Run("English", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/explain", explanationRequest())
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp domain.ExplanationResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		want := "This transaction was classified as fraudulent with a risk score of 87.7%."
		if !strings.HasPrefix(resp.Explanation, want) {
			t.Errorf("unexpected explanation %q", resp.Explanation)
		}
		if !strings.Contains(resp.Explanation, "transaction from a distant location") {
			t.Errorf("expected distance reason in %q", resp.Explanation)
		}
	})

	t.Run("UnknownLanguageFallsBackToEnglish", func(t *testing.T) {
		req := explanationRequest()
		req.Language = "de"
		rr := doJSON(t, router, http.MethodPost, "/explain", req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "classified as fraudulent") {
			t.Errorf("expected English text, got %s", rr.Body.String())
		}
	})

	t.Run("Hindi", func(t *testing.T) {
		req := explanationRequest()
		req.Language = domain.LanguageHindi
		rr := doJSON(t, router, http.MethodPost, "/explain", req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "classified as") {
			t.Errorf("expected Hindi text, got %s", rr.Body.String())
		}
	})

	t.Run("RiskScoreOutOfRange", func(t *testing.T) {
		req := explanationRequest()
		req.RiskScore = 1.5
		rr := doJSON(t, router, http.MethodPost, "/explain", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want string
		}{
			{"Features", `{"transactionAmount":9000,"isFraud":true,"riskScore":0.9}`, "merchantNovelty is required"},
			{"Verdict", `{"transactionAmount":9000,"transactionAmountDeviation":0.9,"timeAnomaly":0.1,"locationDistance":50,"merchantNovelty":0.2,"transactionFrequency":2,"riskScore":0.9}`, "isFraud is required"},
			{"RiskScore", `{"transactionAmount":9000,"transactionAmountDeviation":0.9,"timeAnomaly":0.1,"locationDistance":50,"merchantNovelty":0.2,"transactionFrequency":2,"isFraud":false}`, "riskScore is required"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := doJSON(t, router, http.MethodPost, "/explain", tt.body)
				if rr.Code != http.StatusBadRequest {
					t.Fatalf("expected status 400, got %d", rr.Code)
				}
				if !strings.Contains(rr.Body.String(), tt.want) {
					t.Errorf("expected error to mention %q, got %s", tt.want, rr.Body.String())
				}
			})
		}
	})

	t.Run("ZeroValuesPresent", func(t *testing.T) {
		body := `{"transactionAmount":10,"transactionAmountDeviation":0,"timeAnomaly":0,"locationDistance":0,"merchantNovelty":0,"transactionFrequency":0,"isFraud":false,"riskScore":0}`
		rr := doJSON(t, router, http.MethodPost, "/explain", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Health", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/health", nil)
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["status"] != "ok" || body["backend"] != domain.BackendTemplate {
			t.Errorf("unexpected health body %v", body)
		}
	})
}

func TestExplainBackendError(t *testing.T) {
	handler := NewExplainHandler(explainFunc(func(ctx context.Context, req domain.ExplanationRequest) (string, error) {
		return "", errors.New("model crashed")
	}), "broken")
	server := NewExplainServer(domain.ExplainServerConfig{}, handler, nil)

	rr := doJSON(t, server.Router(), http.MethodPost, "/explain", explanationRequest())
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}
}

func TestExplainRateLimit(t *testing.T) {
	server := newExplainServer(t, 0.001, 1)
	router := server.Router()

	first := doJSON(t, router, http.MethodPost, "/explain", explanationRequest())
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := doJSON(t, router, http.MethodPost, "/explain", explanationRequest())
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", second.Code)
	}

	// health is never limited
	health := doJSON(t, router, http.MethodGet, "/health", nil)
	if health.Code != http.StatusOK {
		t.Errorf("expected health 200, got %d", health.Code)
	}
}

func TestExplainClientAgainstServer(t *testing.T) {
	srv := httptest.NewServer(newExplainServer(t, 0, 0).Router())
	defer srv.Close()

	client := explain.NewClient(explain.NewHTTPBackend(srv.URL), time.Second, nil)
	req := explanationRequest()
	req.IsFraud = false
	req.AmountDeviation = 0
	req.LocationDistance = 0
	req.RiskScore = 0.05

	got := client.Explain(context.Background(), req)
	want := "This transaction was classified as legitimate with a risk score of 5.0%."
	if !strings.HasPrefix(got, want) {
		t.Errorf("unexpected explanation %q", got)
	}

	srv.Close()
	if got := client.Explain(context.Background(), req); got != explain.FallbackUnreachable {
		t.Errorf("expected unreachable fallback, got %q", got)
	}
}
