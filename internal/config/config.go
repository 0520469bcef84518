package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Provider ProviderConfig `mapstructure:"provider" validate:"required"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Notifier NotifierConfig `mapstructure:"notifier" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Credits  CreditsConfig  `mapstructure:"credits"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port               int      `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel           string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat          string   `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	// ShutdownTimeout bounds graceful shutdown of in-flight requests and streams.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Driver selects the task store: postgres, or memory for local development.
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL             string        `mapstructure:"url" validate:"required_if=Driver postgres"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// AuthConfig contains settings for verifying identity provider tokens.
type AuthConfig struct {
	// JWTSecret is the identity provider's HS256 signing secret.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	Audience  string `mapstructure:"audience"`
	Issuer    string `mapstructure:"issuer"`
	// ClockSkew tolerated when checking exp/nbf.
	ClockSkew time.Duration `mapstructure:"clock_skew" validate:"gte=0"`
	// OperatorKeyHash is a bcrypt hash guarding the cleanup and process triggers.
	// Empty disables those endpoints.
	OperatorKeyHash string `mapstructure:"operator_key_hash"`
}

// ProviderConfig selects and configures the image generation provider.
type ProviderConfig struct {
	Name              string        `mapstructure:"name" validate:"required,oneof=azure gemini"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	Azure             AzureConfig   `mapstructure:"azure"`
	Gemini            GeminiConfig  `mapstructure:"gemini"`
}

// AzureConfig configures the Azure OpenAI image deployment.
type AzureConfig struct {
	Endpoint   string `mapstructure:"endpoint" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
}

// GeminiConfig configures the Google Imagen backend.
type GeminiConfig struct {
	APIKey    string `mapstructure:"api_key"`
	ModelName string `mapstructure:"model_name"`
}

// BlobConfig configures durable image storage. An empty CloudName disables uploads.
type BlobConfig struct {
	CloudName         string `mapstructure:"cloud_name"`
	APIKey            string `mapstructure:"api_key"`
	APISecret         string `mapstructure:"api_secret"`
	Folder            string `mapstructure:"folder" validate:"required"`
	UploadConcurrency int    `mapstructure:"upload_concurrency" validate:"gt=0"`
	MaxRetries        uint64 `mapstructure:"max_retries"`
	// Dispatcher is "inline" for in-process goroutines or "river" for durable jobs.
	Dispatcher string `mapstructure:"dispatcher" validate:"oneof=inline river"`
}

// TaskConfig contains settings for the background task runner.
type TaskConfig struct {
	WorkerCount       int           `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize         int           `mapstructure:"queue_size" validate:"gt=0"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	ReapInterval      time.Duration `mapstructure:"reap_interval" validate:"gt=0"`
	PendingTimeout    time.Duration `mapstructure:"pending_timeout" validate:"gt=0"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout" validate:"gt=0"`
	HistoryLimit      int           `mapstructure:"history_limit" validate:"gt=0"`
	// EmbeddedWorker runs the task runner inside the API process. Disable it
	// when dedicated worker processes are deployed.
	EmbeddedWorker bool `mapstructure:"embedded_worker"`
}

// NotifierConfig contains settings for status streams.
type NotifierConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxLifetime        time.Duration `mapstructure:"max_lifetime" validate:"gt=0"`
	TerminalCloseDelay time.Duration `mapstructure:"terminal_close_delay" validate:"gte=0"`
	SettleCloseDelay   time.Duration `mapstructure:"settle_close_delay" validate:"gte=0"`
}

// RedisConfig enables cross-process wake-ups. An empty URL disables Redis.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

// CreditsConfig configures the credit ledger.
type CreditsConfig struct {
	// InitialGrant is the balance opened for a first-time owner.
	InitialGrant int `mapstructure:"initial_grant" validate:"gte=0"`
}
