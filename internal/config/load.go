package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. NAILART_SERVER_PORT.
const EnvPrefix = "NAILART"

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an explicit YAML/JSON/TOML file. When empty, config.yaml
	// in the working directory is used if present.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the process environment first.
	// Defaults to ".env"; a missing file is not an error.
	EnvFile string
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithOptions is Load with explicit file locations.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct tag validation followed by the cross-section rules
// the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Provider.Name {
	case "azure":
		if c.Provider.Azure.Endpoint == "" || c.Provider.Azure.APIKey == "" {
			return errors.New("invalid configuration: provider.azure.endpoint and provider.azure.api_key are required")
		}
	case "gemini":
		if c.Provider.Gemini.APIKey == "" {
			return errors.New("invalid configuration: provider.gemini.api_key is required")
		}
	}

	if c.Blob.CloudName != "" && (c.Blob.APIKey == "" || c.Blob.APISecret == "") {
		return errors.New("invalid configuration: blob.api_key and blob.api_secret are required with blob.cloud_name")
	}
	if c.Blob.Dispatcher == "river" && c.Database.Driver != "postgres" {
		return errors.New("invalid configuration: blob.dispatcher=river requires database.driver=postgres")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.clock_skew", 30*time.Second)
	v.SetDefault("auth.operator_key_hash", "")

	v.SetDefault("provider.name", "azure")
	v.SetDefault("provider.timeout", 2*time.Minute)
	v.SetDefault("provider.requests_per_second", 1.0)
	v.SetDefault("provider.burst", 2)
	v.SetDefault("provider.azure.endpoint", "")
	v.SetDefault("provider.azure.api_key", "")
	v.SetDefault("provider.azure.deployment", "gpt-image-1")
	v.SetDefault("provider.azure.api_version", "2025-04-01-preview")
	v.SetDefault("provider.gemini.api_key", "")
	v.SetDefault("provider.gemini.model_name", "imagen-3.0-generate-002")

	v.SetDefault("blob.cloud_name", "")
	v.SetDefault("blob.api_key", "")
	v.SetDefault("blob.api_secret", "")
	v.SetDefault("blob.folder", "ainails")
	v.SetDefault("blob.upload_concurrency", 2)
	v.SetDefault("blob.max_retries", 3)
	v.SetDefault("blob.dispatcher", "inline")

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.sweep_interval", 30*time.Second)
	v.SetDefault("task.reap_interval", time.Minute)
	v.SetDefault("task.pending_timeout", 10*time.Minute)
	v.SetDefault("task.processing_timeout", 30*time.Minute)
	v.SetDefault("task.history_limit", 30)
	v.SetDefault("task.embedded_worker", true)

	v.SetDefault("notifier.poll_interval", 2*time.Second)
	v.SetDefault("notifier.max_lifetime", 10*time.Minute)
	v.SetDefault("notifier.terminal_close_delay", time.Second)
	v.SetDefault("notifier.settle_close_delay", 2*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "nailart:task-wakeups")

	v.SetDefault("credits.initial_grant", 10)
}
