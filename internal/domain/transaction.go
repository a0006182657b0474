package domain

import "strings"

// Mode selects which classifier variant scores a transaction.
type Mode string

const (
	// ModeFast is the low-latency classifier over the six base features.
	ModeFast Mode = "fast"

	// ModeAccurate adds derived cross-features and may carry a latency floor.
	ModeAccurate Mode = "accurate"
)

// KnownModes lists the modes in fallback preference order.
var KnownModes = []Mode{ModeFast, ModeAccurate}

// ParseMode returns the mode for s. Empty input means ModeFast.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFast:
		return ModeFast, true
	case ModeAccurate:
		return ModeAccurate, true
	default:
		return "", false
	}
}

// Language is a requested explanation locale.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
	LanguageMarathi Language = "mr"
)

// SupportedLanguages are the locales with a complete message catalog.
var SupportedLanguages = []Language{LanguageEnglish, LanguageHindi, LanguageMarathi}

// NormalizeLanguage maps any unsupported or empty value to English.
func NormalizeLanguage(s string) Language {
	lang := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range SupportedLanguages {
		if lang == l {
			return l
		}
	}
	return LanguageEnglish
}

// TransactionInput is a single transaction submitted for scoring.
// Values are treated as immutable once received.
type TransactionInput struct {
	UPIID                string   `json:"upiId"`
	Amount               float64  `json:"transactionAmount"`
	AmountDeviation      float64  `json:"transactionAmountDeviation"`
	TimeAnomaly          float64  `json:"timeAnomaly"`
	LocationDistance     float64  `json:"locationDistance"`
	MerchantNovelty      float64  `json:"merchantNovelty"`
	TransactionFrequency float64  `json:"transactionFrequency"`
	Mode                 Mode     `json:"mode"`
	Language             Language `json:"language"`
}

// PredictRequest is the API request payload for POST /predict. The
// features are pointers so an absent field fails validation instead of
// being scored as zero.
type PredictRequest struct {
	UPIID                string   `json:"upiId" validate:"required,max=256"`
	Amount               *float64 `json:"transactionAmount" validate:"required,gt=0"`
	AmountDeviation      *float64 `json:"transactionAmountDeviation" validate:"required"`
	TimeAnomaly          *float64 `json:"timeAnomaly" validate:"required,gte=0,lte=1"`
	LocationDistance     *float64 `json:"locationDistance" validate:"required,gte=0"`
	MerchantNovelty      *float64 `json:"merchantNovelty" validate:"required,gte=0,lte=1"`
	TransactionFrequency *float64 `json:"transactionFrequency" validate:"required,gte=0"`
	Mode                 string   `json:"mode,omitempty" validate:"omitempty,oneof=fast accurate"`
	Language             string   `json:"language,omitempty"`
}

// NewPredictRequest builds the wire request for in.
func NewPredictRequest(in *TransactionInput) *PredictRequest {
	return &PredictRequest{
		UPIID:                in.UPIID,
		Amount:               Float64(in.Amount),
		AmountDeviation:      Float64(in.AmountDeviation),
		TimeAnomaly:          Float64(in.TimeAnomaly),
		LocationDistance:     Float64(in.LocationDistance),
		MerchantNovelty:      Float64(in.MerchantNovelty),
		TransactionFrequency: Float64(in.TransactionFrequency),
		Mode:                 string(in.Mode),
		Language:             string(in.Language),
	}
}

// ToInput converts a validated request to a TransactionInput.
func (r *PredictRequest) ToInput() *TransactionInput {
	mode, ok := ParseMode(r.Mode)
	if !ok {
		mode = ModeFast
	}
	return &TransactionInput{
		UPIID:                strings.TrimSpace(r.UPIID),
		Amount:               deref(r.Amount),
		AmountDeviation:      deref(r.AmountDeviation),
		TimeAnomaly:          deref(r.TimeAnomaly),
		LocationDistance:     deref(r.LocationDistance),
		MerchantNovelty:      deref(r.MerchantNovelty),
		TransactionFrequency: deref(r.TransactionFrequency),
		Mode:                 mode,
		Language:             NormalizeLanguage(r.Language),
	}
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
