package explain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// GenerationFallback is returned when the generator fails or produces
// nothing.
const GenerationFallback = "Unable to generate an explanation at this time."

const systemInstruction = `You are a fraud explanation assistant for a digital payments app.
Explain to the customer why their transaction received this verdict.
Rules:
- Use only the facts given. Never invent details.
- Use plain words, no technical or statistical jargon.
- Use at most 5 short bullet points.
- Keep a calm, reassuring tone.
- Answer in %s.`

var languageNames = map[domain.Language]string{
	domain.LanguageEnglish: "English",
	domain.LanguageHindi:   "Hindi",
	domain.LanguageMarathi: "Marathi",
}

// GenerativeBackend asks a language model to explain the verdict.
type GenerativeBackend struct {
	generator Generator
}

// NewGenerativeBackend wraps generator.
func NewGenerativeBackend(generator Generator) *GenerativeBackend {
	return &GenerativeBackend{generator: generator}
}

// Name identifies the backend.
func (b *GenerativeBackend) Name() string { return domain.BackendGenerative }

// Explain never returns an error; generation failures yield
// GenerationFallback.
func (b *GenerativeBackend) Explain(ctx context.Context, req domain.ExplanationRequest) (string, error) {
	lang := domain.NormalizeLanguage(string(req.Language))
	system := fmt.Sprintf(systemInstruction, languageNames[lang])

	text, err := b.generator.Generate(ctx, system, UserMessage(req))
	if err != nil {
		slog.Warn("generation failed", "error", err)
		return GenerationFallback, nil
	}
	if text == "" {
		slog.Warn("generation returned no text")
		return GenerationFallback, nil
	}
	return text, nil
}

// UserMessage lists the transaction facts for the model.
func UserMessage(req domain.ExplanationRequest) string {
	verdict := "legitimate"
	if req.IsFraud {
		verdict = "fraudulent"
	}
	return fmt.Sprintf(`Transaction details:
- Amount: %.2f
- Deviation from usual amount: %.2f
- Time anomaly (0 to 1): %.2f
- Distance from usual location (km): %.1f
- Merchant novelty (0 to 1): %.2f
- Transactions in the recent window: %.0f
Verdict: %s
Risk score: %s%%

Explain this verdict.`,
		req.Amount,
		req.AmountDeviation,
		req.TimeAnomaly,
		req.LocationDistance,
		req.MerchantNovelty,
		req.TransactionFrequency,
		verdict,
		FormatPercent(req.RiskScore),
	)
}
