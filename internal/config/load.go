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

// EnvPrefix is prepended to every environment variable, e.g. CAROUSEL_SERVER_PORT.
const EnvPrefix = "CAROUSEL"

// loadOptions collects the optional inputs of Load.
type loadOptions struct {
	configFile string
	envFiles   []string
}

// Option customizes Load.
type Option func(*loadOptions)

// WithConfigFile reads the given YAML/TOML/JSON file instead of searching for config.yaml.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) {
		o.configFile = path
	}
}

// WithEnvFiles loads the given dotenv files before reading the environment.
// Missing files are ignored.
func WithEnvFiles(paths ...string) Option {
	return func(o *loadOptions) {
		o.envFiles = paths
	}
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{envFiles: []string{".env"}}
	for _, opt := range opts {
		opt(&o)
	}

	// Existing environment variables win over .env entries.
	for _, f := range o.envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || o.configFile != "" {
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

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and refuses placeholder secrets outside development.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if !cfg.Server.IsDevelopment() {
		if cfg.Admin.APIKey == DefaultSecret {
			return errors.New("config validation failed: admin.api_key must be changed from default in non-dev environments")
		}
		if cfg.Payments.WebhookSecret == DefaultSecret {
			return errors.New("config validation failed: payments.webhook_secret must be changed from default in non-dev environments")
		}
	}

	return nil
}

// setDefaults registers every key so AutomaticEnv can populate it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "carousels")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.prefix", "carousels")
	v.SetDefault("storage.retention_days", 30)
	v.SetDefault("storage.cleanup_interval", 24*time.Hour)
	v.SetDefault("storage.request_timeout", 30*time.Second)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", 10*time.Second)
	v.SetDefault("telegram.media_group_timeout", 60*time.Second)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.copy_model", "gemini-2.5-flash")
	v.SetDefault("llm.image_model", "gemini-2.5-flash-image")
	v.SetDefault("llm.request_timeout", 90*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("generation.image_max_concurrency", 3)
	v.SetDefault("generation.image_max_retries", 2)
	v.SetDefault("generation.image_retry_backoff", 2*time.Second)
	v.SetDefault("generation.image_slides", 1)
	v.SetDefault("generation.cta_image_dir", "")

	v.SetDefault("task.queue_backend", "redis")
	v.SetDefault("task.queue_key", "carouselmaker:tasks")
	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.max_retries", 2)
	v.SetDefault("task.retry_delay", 30*time.Second)
	v.SetDefault("task.stuck_task_age_minutes", 30)

	v.SetDefault("payments.webhook_secret", DefaultSecret)
	v.SetDefault("admin.api_key", DefaultSecret)
	v.SetDefault("admin.stats_cache_ttl", 30*time.Second)
}
