package domain

import "time"

// Config holds the complete FraudGuard configuration.
type Config struct {
	// Server settings for the prediction API
	Server ServerConfig `koanf:"server"`

	// ExplainServer settings for the explanation service
	ExplainServer ExplainServerConfig `koanf:"explain_server"`

	// Component configurations
	Models      ModelsConfig      `koanf:"models"`
	History     HistoryConfig     `koanf:"history"`
	Repository  RepositoryConfig  `koanf:"repository"`
	Explanation ExplanationConfig `koanf:"explanation"`
	Cache       CacheConfig       `koanf:"cache"`
	EventBus    EventBusConfig    `koanf:"event_bus"`

	// Observability
	Logging LoggingConfig `koanf:"logging"`
	Tracing TracingConfig `koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// ExplainServerConfig holds settings for the explanation service.
type ExplainServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// RateLimit is the sustained requests per second; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// HTTP returns the listener settings.
func (c ExplainServerConfig) HTTP() ServerConfig {
	return ServerConfig{
		Host:         c.Host,
		Port:         c.Port,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// ModelsConfig locates classifier artifacts.
type ModelsConfig struct {
	FastPath     string `koanf:"fast_path"`
	AccuratePath string `koanf:"accurate_path"`

	// AccurateLatencyFloor is the minimum time an accurate prediction takes.
	// Zero disables the floor.
	AccurateLatencyFloor time.Duration `koanf:"accurate_latency_floor"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`

	// Exporter is "stdout" or "none". With "none" spans are sampled for
	// trace ids but not exported.
	Exporter string `koanf:"exporter"`
}

// DefaultRecurringThreshold is the fraud count at which a handle is
// reported as a recurring offender.
const DefaultRecurringThreshold = 3

// DefaultExplanationTimeout bounds a single explanation call.
const DefaultExplanationTimeout = 30 * time.Second

// DefaultConfig returns a single-node configuration: file history,
// in-process channel bus, template explanations over HTTP.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 45 * time.Second,
		},
		ExplainServer: ExplainServerConfig{
			Host:         "0.0.0.0",
			Port:         8001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			RateLimit:    20,
			RateBurst:    40,
		},
		Models: ModelsConfig{
			FastPath:     "./models/model_fast.json",
			AccuratePath: "./models/model_accurate.json",
		},
		History: HistoryConfig{
			Backend:            "file",
			FilePath:           "./fraud_history.json",
			RecurringThreshold: DefaultRecurringThreshold,
			RedisAddr:          "localhost:6379",
			RedisKeyPrefix:     "fraudguard",
		},
		Repository: RepositoryConfig{
			Enabled:    true,
			Driver:     "sqlite",
			SQLitePath: "./fraudguard.db",
		},
		Explanation: ExplanationConfig{
			Transport: TransportHTTP,
			BaseURL:   "http://localhost:8001",
			Timeout:   DefaultExplanationTimeout,
			Backend:   BackendTemplate,
			Generator: GeneratorConfig{
				URL:          "http://localhost:8080",
				Model:        "HuggingFaceTB/SmolLM2-360M-Instruct",
				MaxNewTokens: 150,
				Temperature:  0.3,
				Timeout:      25 * time.Second,
			},
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			TTL:          time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudguard",
			Exporter:    "none",
		},
	}
}
