package domain

import (
	"time"
)

// PredictionResult is the API response for a scored transaction.
type PredictionResult struct {
	PredictionID   string  `json:"prediction_id"`
	Fraud          bool    `json:"fraud"`
	RiskScore      float64 `json:"risk_score"`
	ModelUsed      Mode    `json:"model_used"`
	RecurringFraud bool    `json:"recurring_fraud"`
	FraudCount     int64   `json:"fraud_count"`
	Explanation    *string `json:"explanation,omitempty"`
}

// PredictionRecord is the audit trail entry for one prediction.
type PredictionRecord struct {
	ID             string    `json:"id"`
	UPIID          string    `json:"upiId"`
	RequestedMode  Mode      `json:"requestedMode"`
	ModelUsed      Mode      `json:"modelUsed"`
	Language       Language  `json:"language"`
	Features       []float64 `json:"features"`
	Fraud          bool      `json:"fraud"`
	RiskScore      float64   `json:"riskScore"`
	RecurringFraud bool      `json:"recurringFraud"`
	FraudCount     int64     `json:"fraudCount"`
	Explanation    string    `json:"explanation,omitempty"`
	TraceID        string    `json:"traceId,omitempty"`
	DurationMs     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ToResult converts an audit record back to the API response shape.
func (p *PredictionRecord) ToResult() *PredictionResult {
	res := &PredictionResult{
		PredictionID:   p.ID,
		Fraud:          p.Fraud,
		RiskScore:      p.RiskScore,
		ModelUsed:      p.ModelUsed,
		RecurringFraud: p.RecurringFraud,
		FraudCount:     p.FraudCount,
	}
	if p.Explanation != "" {
		text := p.Explanation
		res.Explanation = &text
	}
	return res
}

// RecurringAlert is published when a recurring handle receives another
// fraudulent verdict.
type RecurringAlert struct {
	PredictionID string    `json:"predictionId"`
	UPIID        string    `json:"upiId"`
	FraudCount   int64     `json:"fraudCount"`
	RiskScore    float64   `json:"riskScore"`
	ModelUsed    Mode      `json:"modelUsed"`
	TraceID      string    `json:"traceId,omitempty"`
	DetectedAt   time.Time `json:"detectedAt"`
}
