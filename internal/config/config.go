// Package config loads FraudGuard configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: FRAUDGUARD_EXPLANATION__BASE_URL.
const EnvPrefix = "FRAUDGUARD_"

// Load builds the configuration. path may be empty; a missing file is not
// an error.
func Load(path string) (*domain.Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(domain.DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg domain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyLegacyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// applyLegacyEnv honors the variable names used by earlier deployments.
func applyLegacyEnv(cfg *domain.Config) {
	if v := os.Getenv("EXPLANATION_SERVICE_URL"); v != "" {
		cfg.Explanation.BaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate rejects configurations the services cannot start with.
func Validate(cfg *domain.Config) error {
	switch cfg.History.Backend {
	case "file":
		if cfg.History.FilePath == "" {
			return fmt.Errorf("%w: history.file_path is required for the file backend", domain.ErrInvalidInput)
		}
	case "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("%w: unsupported history backend %q", domain.ErrInvalidInput, cfg.History.Backend)
	}

	if cfg.History.RecurringThreshold <= 0 {
		return fmt.Errorf("%w: history.recurring_threshold must be positive", domain.ErrInvalidInput)
	}

	switch cfg.Explanation.Transport {
	case domain.TransportHTTP:
		if cfg.Explanation.BaseURL == "" {
			return fmt.Errorf("%w: explanation.base_url is required for the http transport", domain.ErrInvalidInput)
		}
	case domain.TransportLocal, domain.TransportDisabled:
	default:
		return fmt.Errorf("%w: unsupported explanation transport %q", domain.ErrInvalidInput, cfg.Explanation.Transport)
	}

	switch cfg.Explanation.Backend {
	case domain.BackendTemplate, domain.BackendGenerative:
	default:
		return fmt.Errorf("%w: unsupported explanation backend %q", domain.ErrInvalidInput, cfg.Explanation.Backend)
	}

	if cfg.Explanation.Timeout <= 0 {
		cfg.Explanation.Timeout = domain.DefaultExplanationTimeout
	}
	if cfg.Models.AccurateLatencyFloor < 0 {
		return fmt.Errorf("%w: models.accurate_latency_floor must not be negative", domain.ErrInvalidInput)
	}
	return nil
}
