package explain

import (
	"context"
	"strings"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/shopspring/decimal"
)

// TemplateBackend builds deterministic localized explanations from the
// reason rules and the message catalog.
type TemplateBackend struct {
	catalog  Catalog
	reasoner *Reasoner
}

// NewTemplateBackend validates catalog and compiles the default reason rules.
func NewTemplateBackend(catalog Catalog) (*TemplateBackend, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	reasoner, err := NewReasoner(DefaultReasonRules)
	if err != nil {
		return nil, err
	}
	return &TemplateBackend{catalog: catalog, reasoner: reasoner}, nil
}

// Name identifies the backend.
func (b *TemplateBackend) Name() string { return domain.BackendTemplate }

// Explain renders the intro and reasons sentences in the request language.
func (b *TemplateBackend) Explain(ctx context.Context, req domain.ExplanationRequest) (string, error) {
	lang := domain.NormalizeLanguage(string(req.Language))

	keys, err := b.reasoner.Reasons(req)
	if err != nil {
		return "", err
	}
	phrases := make([]string, len(keys))
	for i, k := range keys {
		phrases[i] = b.catalog.Lookup(lang, k)
	}

	status := b.catalog.Lookup(lang, KeyStatusLegitimate)
	if req.IsFraud {
		status = b.catalog.Lookup(lang, KeyStatusFraudulent)
	}

	intro := strings.NewReplacer(
		"{status}", status,
		"{score}", FormatPercent(req.RiskScore),
	).Replace(b.catalog.Lookup(lang, KeyIntro))

	reasons := strings.NewReplacer(
		"{reasons}", strings.Join(phrases, b.catalog.Lookup(lang, KeySeparator)),
	).Replace(b.catalog.Lookup(lang, KeyReasons))

	return intro + " " + reasons, nil
}

// FormatPercent renders a probability as a percentage with one decimal.
func FormatPercent(p float64) string {
	return decimal.NewFromFloat(p).Shift(2).StringFixed(1)
}
