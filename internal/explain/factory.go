package explain

import (
	"fmt"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// NewBackend builds the in-process backend named by cfg.Backend.
func NewBackend(cfg domain.ExplanationConfig) (Backend, error) {
	switch cfg.Backend {
	case "", domain.BackendTemplate:
		return NewTemplateBackend(DefaultCatalog())
	case domain.BackendGenerative:
		return NewGenerativeBackend(NewTGIClient(cfg.Generator)), nil
	default:
		return nil, fmt.Errorf("unsupported explanation backend: %s", cfg.Backend)
	}
}

// NewClientFromConfig builds the client for cfg.Transport. The disabled
// transport returns a nil client.
func NewClientFromConfig(cfg domain.ExplanationConfig, observer Observer) (*Client, error) {
	var backend Backend

	switch cfg.Transport {
	case "", domain.TransportHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("explanation base_url is required for the http transport")
		}
		backend = NewHTTPBackend(cfg.BaseURL)
	case domain.TransportLocal:
		b, err := NewBackend(cfg)
		if err != nil {
			return nil, err
		}
		backend = b
	case domain.TransportDisabled:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported explanation transport: %s", cfg.Transport)
	}

	return NewClient(backend, cfg.Timeout, observer), nil
}
