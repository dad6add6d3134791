package config

import "time"

// DefaultSecret is the placeholder value shipped for shared secrets.
// Non-development environments refuse to start while it is in use.
const DefaultSecret = "change-me"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis" validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage" validate:"required"`
	Telegram   TelegramConfig   `mapstructure:"telegram" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Task       TaskConfig       `mapstructure:"task" validate:"required"`
	Payments   PaymentsConfig   `mapstructure:"payments" validate:"required"`
	Admin      AdminConfig      `mapstructure:"admin" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	Environment     string        `mapstructure:"environment" validate:"required,oneof=development staging production"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// IsDevelopment reports whether the process runs in the development environment.
func (c ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gt=0"`
}

// RedisConfig holds the connection used by the task queue and the cleanup lock.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// StorageConfig describes the S3-compatible bucket holding rendered slides.
type StorageConfig struct {
	Endpoint        string        `mapstructure:"endpoint" validate:"required"`
	AccessKey       string        `mapstructure:"access_key" validate:"required"`
	SecretKey       string        `mapstructure:"secret_key" validate:"required"`
	Bucket          string        `mapstructure:"bucket" validate:"required"`
	Region          string        `mapstructure:"region"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Prefix          string        `mapstructure:"prefix" validate:"required"`
	RetentionDays   int           `mapstructure:"retention_days" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// TelegramConfig holds Bot API settings for delivery and status messages.
type TelegramConfig struct {
	BotToken          string        `mapstructure:"bot_token" validate:"required"`
	APIBaseURL        string        `mapstructure:"api_base_url" validate:"required,url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MediaGroupTimeout time.Duration `mapstructure:"media_group_timeout" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string        `mapstructure:"gemini_api_key" validate:"required"`
	CopyModel         string        `mapstructure:"copy_model" validate:"required"`
	ImageModel        string        `mapstructure:"image_model" validate:"required"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// GenerationConfig tunes the image requester and the pipeline.
type GenerationConfig struct {
	ImageMaxConcurrency int           `mapstructure:"image_max_concurrency" validate:"gt=0"`
	ImageMaxRetries     int           `mapstructure:"image_max_retries" validate:"gte=0"`
	ImageRetryBackoff   time.Duration `mapstructure:"image_retry_backoff" validate:"gte=0"`
	ImageSlides         int           `mapstructure:"image_slides" validate:"gte=0,lte=10"`
	// CTAImageDir holds optional <style slug>.png images for CTA slides
	CTAImageDir string `mapstructure:"cta_image_dir"`
}

// TaskConfig contains settings for the background task processing system.
type TaskConfig struct {
	QueueBackend        string        `mapstructure:"queue_backend" validate:"required,oneof=memory redis"`
	QueueKey            string        `mapstructure:"queue_key" validate:"required"`
	WorkerCount         int           `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize           int           `mapstructure:"queue_size" validate:"gt=0"`
	MaxRetries          int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay          time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	StuckTaskAgeMinutes int           `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
}

// PaymentsConfig holds the shared secret the payment gateway signs webhooks with.
type PaymentsConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required"`
}

// AdminConfig holds the API key guarding admin endpoints.
type AdminConfig struct {
	APIKey        string        `mapstructure:"api_key" validate:"required"`
	StatsCacheTTL time.Duration `mapstructure:"stats_cache_ttl" validate:"gte=0"`
}
