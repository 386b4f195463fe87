package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Transport TransportConfig `yaml:"transport"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int      `yaml:"port"`
	Host         string   `yaml:"host"`
	TrackingPort int      `yaml:"tracking_port"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds the Redis connection used for dispatch locks.
// An empty URL disables Redis and falls back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the dispatch lock TTL as a duration
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// TrackingConfig holds the public tracking endpoint settings
type TrackingConfig struct {
	BaseURL              string              `yaml:"base_url"`
	UpdateTimeoutSeconds int                 `yaml:"update_timeout_seconds"`
	Queue                TrackingQueueConfig `yaml:"queue"`
}

// TrackingQueueConfig selects how open and click events reach the ledger.
// "direct" applies them in-process; "sqs" publishes them for cmd/worker.
type TrackingQueueConfig struct {
	Type        string `yaml:"type"`
	SQSQueueURL string `yaml:"sqs_queue_url"`
	Region      string `yaml:"region"`
}

// UpdateTimeout bounds fire-and-forget ledger updates
func (c TrackingConfig) UpdateTimeout() time.Duration {
	return time.Duration(c.UpdateTimeoutSeconds) * time.Second
}

// DispatchConfig holds send loop settings
type DispatchConfig struct {
	ThrottleMillis          int `yaml:"throttle_ms"`
	StaleAfterMinutes       int `yaml:"stale_after_minutes"`
	WatchdogIntervalSeconds int `yaml:"watchdog_interval_seconds"`
}

// Throttle returns the fixed delay between consecutive sends
func (c DispatchConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleMillis) * time.Millisecond
}

// StaleAfter returns how long a sending campaign may go without progress
func (c DispatchConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// WatchdogInterval returns the watchdog scan period
func (c DispatchConfig) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalSeconds) * time.Second
}

// TransportConfig selects the mail transport and holds the default
// connection parameters used when an owner has none of their own.
type TransportConfig struct {
	Provider string     `yaml:"provider"` // "smtp" or "ses"
	SMTP     SMTPConfig `yaml:"smtp"`
	SES      SESConfig  `yaml:"ses"`
}

// SMTPConfig holds default SMTP session parameters
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	FromName           string `yaml:"from_name"`
	FromEmail          string `yaml:"from_email"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// Timeout returns the dial timeout as a duration
func (c SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	Type      string `yaml:"type"` // "local" or "s3"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	AWSRegion string `yaml:"aws_region"`
}

// AuthConfig maps API keys to owner ids
type AuthConfig struct {
	APIKeys map[string]string `yaml:"api_keys"`
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Load reads and parses the configuration file. An empty path yields
// a configuration built from defaults only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.TrackingPort == 0 {
		cfg.Server.TrackingPort = 8081
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Redis.LockTTLSeconds == 0 {
		cfg.Redis.LockTTLSeconds = 60
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "http://localhost:" + strconv.Itoa(cfg.Server.Port)
	}
	cfg.Tracking.BaseURL = strings.TrimRight(cfg.Tracking.BaseURL, "/")
	if cfg.Tracking.UpdateTimeoutSeconds == 0 {
		cfg.Tracking.UpdateTimeoutSeconds = 5
	}
	if cfg.Tracking.Queue.Type == "" {
		cfg.Tracking.Queue.Type = "direct"
	}
	if cfg.Dispatch.ThrottleMillis == 0 {
		cfg.Dispatch.ThrottleMillis = 3000
	}
	if cfg.Dispatch.StaleAfterMinutes == 0 {
		cfg.Dispatch.StaleAfterMinutes = 15
	}
	if cfg.Dispatch.WatchdogIntervalSeconds == 0 {
		cfg.Dispatch.WatchdogIntervalSeconds = 60
	}
	if cfg.Transport.Provider == "" {
		cfg.Transport.Provider = "smtp"
	}
	if cfg.Transport.SMTP.Port == 0 {
		cfg.Transport.SMTP.Port = 587
	}
	if cfg.Transport.SMTP.TimeoutSeconds == 0 {
		cfg.Transport.SMTP.TimeoutSeconds = 30
	}
	if cfg.Transport.SES.Region == "" {
		cfg.Transport.SES.Region = "us-west-2"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./uploads"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = cfg.Transport.SES.Region
	}
	if cfg.Tracking.Queue.Region == "" {
		cfg.Tracking.Queue.Region = cfg.Transport.SES.Region
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "bulkmail"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment. A missing config
// file is tolerated; defaults and the environment then fill everything in.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Load("")
	}
	if err != nil {
		return nil, err
	}

	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.TrackingPort, "TRACKING_PORT")
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = strings.TrimRight(v, "/")
	}
	setString(&cfg.Tracking.Queue.Type, "TRACKING_QUEUE")
	setString(&cfg.Tracking.Queue.SQSQueueURL, "TRACKING_SQS_QUEUE_URL")
	setInt(&cfg.Dispatch.ThrottleMillis, "DISPATCH_THROTTLE_MS")

	setString(&cfg.Transport.Provider, "MAIL_TRANSPORT")
	setString(&cfg.Transport.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.Transport.SMTP.Port, "SMTP_PORT")
	setString(&cfg.Transport.SMTP.Username, "SMTP_USER")
	setString(&cfg.Transport.SMTP.Password, "SMTP_PASS")
	setString(&cfg.Transport.SMTP.FromName, "SMTP_FROM_NAME")
	setString(&cfg.Transport.SMTP.FromEmail, "SMTP_FROM_EMAIL")
	setString(&cfg.Transport.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.Transport.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.Transport.SES.Region, "AWS_SES_REGION")

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.S3Bucket, "S3_BUCKET")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	// API_KEYS=key1:owner1,key2:owner2
	if v := os.Getenv("API_KEYS"); v != "" {
		if cfg.Auth.APIKeys == nil {
			cfg.Auth.APIKeys = make(map[string]string)
		}
		for _, pair := range strings.Split(v, ",") {
			key, owner, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if ok && key != "" && owner != "" {
				cfg.Auth.APIKeys[key] = owner
			}
		}
	}

	return cfg, nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
