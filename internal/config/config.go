package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Recognition RecognitionConfig `mapstructure:"recognition" validate:"required"`
	Storage     StorageConfig     `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RecognitionConfig contains the external recognition engine settings and
// the poll-loop timing knobs.
type RecognitionConfig struct {
	DatalabURL    string `mapstructure:"datalab_url" validate:"required,url"`
	DatalabAPIKey string `mapstructure:"datalab_api_key" validate:"required"`

	// PollInterval is the delay between poll rounds.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// PollTimeout is the network timeout for one poll request.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`

	// EstimatedDuration calibrates the heuristic progress estimate.
	EstimatedDuration time.Duration `mapstructure:"estimated_duration"`
}

// StorageConfig contains the blob-store settings.
type StorageConfig struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
}
