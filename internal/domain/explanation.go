package domain

import "time"

// ExplanationRequest is the contract between the scoring pipeline and an
// explanation backend. Field names match the explanation service wire format.
type ExplanationRequest struct {
	Amount               float64  `json:"transactionAmount"`
	AmountDeviation      float64  `json:"transactionAmountDeviation"`
	TimeAnomaly          float64  `json:"timeAnomaly"`
	LocationDistance     float64  `json:"locationDistance"`
	MerchantNovelty      float64  `json:"merchantNovelty"`
	TransactionFrequency float64  `json:"transactionFrequency"`
	IsFraud              bool     `json:"isFraud"`
	RiskScore            float64  `json:"riskScore"`
	Language             Language `json:"language,omitempty"`
}

// NewExplanationRequest builds the request for a finalized verdict.
func NewExplanationRequest(in *TransactionInput, isFraud bool, riskScore float64) ExplanationRequest {
	return ExplanationRequest{
		Amount:               in.Amount,
		AmountDeviation:      in.AmountDeviation,
		TimeAnomaly:          in.TimeAnomaly,
		LocationDistance:     in.LocationDistance,
		MerchantNovelty:      in.MerchantNovelty,
		TransactionFrequency: in.TransactionFrequency,
		IsFraud:              isFraud,
		RiskScore:            riskScore,
		Language:             in.Language,
	}
}

// ExplainRequest is the POST /explain payload. Every field must be present.
type ExplainRequest struct {
	Amount               *float64 `json:"transactionAmount" validate:"required"`
	AmountDeviation      *float64 `json:"transactionAmountDeviation" validate:"required"`
	TimeAnomaly          *float64 `json:"timeAnomaly" validate:"required"`
	LocationDistance     *float64 `json:"locationDistance" validate:"required"`
	MerchantNovelty      *float64 `json:"merchantNovelty" validate:"required"`
	TransactionFrequency *float64 `json:"transactionFrequency" validate:"required"`
	IsFraud              *bool    `json:"isFraud" validate:"required"`
	RiskScore            *float64 `json:"riskScore" validate:"required,gte=0,lte=1"`
	Language             string   `json:"language,omitempty"`
}

// ToExplanationRequest converts a validated payload.
func (r *ExplainRequest) ToExplanationRequest() ExplanationRequest {
	req := ExplanationRequest{
		Amount:               deref(r.Amount),
		AmountDeviation:      deref(r.AmountDeviation),
		TimeAnomaly:          deref(r.TimeAnomaly),
		LocationDistance:     deref(r.LocationDistance),
		MerchantNovelty:      deref(r.MerchantNovelty),
		TransactionFrequency: deref(r.TransactionFrequency),
		RiskScore:            deref(r.RiskScore),
		Language:             NormalizeLanguage(r.Language),
	}
	if r.IsFraud != nil {
		req.IsFraud = *r.IsFraud
	}
	return req
}

// ExplanationResponse is the explanation service response body.
type ExplanationResponse struct {
	Explanation string `json:"explanation"`
}

// Explanation transports.
const (
	TransportHTTP     = "http"
	TransportLocal    = "local"
	TransportDisabled = "disabled"
)

// Explanation backends.
const (
	BackendTemplate   = "template"
	BackendGenerative = "generative"
)

// ExplanationConfig configures how explanations are produced.
type ExplanationConfig struct {
	// Transport is "http", "local" or "disabled".
	Transport string `koanf:"transport"`

	// BaseURL of the explanation service for the http transport.
	BaseURL string `koanf:"base_url"`

	// Timeout bounds the single explanation attempt.
	Timeout time.Duration `koanf:"timeout"`

	// Backend is "template" or "generative" (local transport and explainer binary).
	Backend string `koanf:"backend"`

	Generator GeneratorConfig `koanf:"generator"`
}

// GeneratorConfig configures the text-generation endpoint used by the
// generative backend.
type GeneratorConfig struct {
	URL          string        `koanf:"url"`
	Model        string        `koanf:"model"`
	APIKey       string        `koanf:"api_key"`
	MaxNewTokens int           `koanf:"max_new_tokens"`
	Temperature  float64       `koanf:"temperature"`
	Timeout      time.Duration `koanf:"timeout"`
}
