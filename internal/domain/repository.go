// Package domain defines the core interfaces and types for FraudGuard.
package domain

import (
	"context"
	"time"
)

// Repository persists the prediction audit trail.
type Repository interface {
	SavePrediction(ctx context.Context, p *PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (*PredictionRecord, error)
	ListPredictionsByHandle(ctx context.Context, upiID string, limit int) ([]*PredictionRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Enabled turns the prediction audit trail on.
	Enabled bool `koanf:"enabled"`

	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDB       string `koanf:"postgres_db"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}
