package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	queueredis "github.com/uniboxhq/inbox-sync/pkg/queue/redis"
	"github.com/uniboxhq/inbox-sync/pkg/validator"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Sync       SyncConfig       `mapstructure:"sync"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Connectors ConnectorsConfig `mapstructure:"connectors"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host" validate:"required"`
	Port         int    `mapstructure:"port" validate:"required"`
	User         string `mapstructure:"user" validate:"required"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name" validate:"required"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" validate:"required"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

func (c *RedisConfig) ToQueueConfig() queueredis.Config {
	return queueredis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

type SyncConfig struct {
	Workers           int           `mapstructure:"workers"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ScheduleInterval  time.Duration `mapstructure:"schedule_interval"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	CalendarLookAhead time.Duration `mapstructure:"calendar_look_ahead"`
	ConnectionCache   time.Duration `mapstructure:"connection_cache_ttl"`
	JobRetention      time.Duration `mapstructure:"job_retention"`
	FailingThreshold  int           `mapstructure:"failing_threshold"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" validate:"required"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type SMTPConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	From          string `mapstructure:"from"`
	OperatorEmail string `mapstructure:"operator_email"`
}

type ConnectorConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	WebhookSecret     string  `mapstructure:"webhook_secret"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type ConnectorsConfig struct {
	Github         ConnectorConfig `mapstructure:"github"`
	Linear         ConnectorConfig `mapstructure:"linear"`
	Slack          ConnectorConfig `mapstructure:"slack"`
	GoogleCalendar ConnectorConfig `mapstructure:"google_calendar"`
	GoogleDrive    ConnectorConfig `mapstructure:"google_drive"`
	Todoist        ConnectorConfig `mapstructure:"todoist"`
}

type SecurityConfig struct {
	// EncryptionKey seals connection credentials at rest. Must be 16,
	// 24, or 32 bytes.
	EncryptionKey string `mapstructure:"encryption_key" validate:"required,min=16"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path"`
}

// envOverrides carries the secrets that should come from the
// environment rather than the config file.
type envOverrides struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	DatabaseHost     string `envconfig:"DB_HOST"`
	RedisURL         string `envconfig:"REDIS_URL"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	EncryptionKey    string `envconfig:"ENCRYPTION_KEY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if env.DatabasePassword != "" {
		config.Database.Password = env.DatabasePassword
	}
	if env.DatabaseHost != "" {
		config.Database.Host = env.DatabaseHost
	}
	if env.RedisURL != "" {
		config.Redis.URL = env.RedisURL
	}
	if env.JWTSecret != "" {
		config.JWT.Secret = env.JWTSecret
	}
	if env.EncryptionKey != "" {
		config.Security.EncryptionKey = env.EncryptionKey
	}
	if env.SMTPPassword != "" {
		config.SMTP.Password = env.SMTPPassword
	}

	applyDefaults(&config)

	if err := validator.New().Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.MaxAttempts <= 0 {
		cfg.Sync.MaxAttempts = 5
	}
	if cfg.Sync.RetryBaseDelay <= 0 {
		cfg.Sync.RetryBaseDelay = 30 * time.Second
	}
	if cfg.Sync.PollInterval <= 0 {
		cfg.Sync.PollInterval = 5 * time.Second
	}
	if cfg.Sync.ScheduleInterval <= 0 {
		cfg.Sync.ScheduleInterval = 15 * time.Minute
	}
	if cfg.Sync.FetchTimeout <= 0 {
		cfg.Sync.FetchTimeout = 60 * time.Second
	}
	if cfg.Sync.CalendarLookAhead <= 0 {
		cfg.Sync.CalendarLookAhead = 7 * 24 * time.Hour
	}
	if cfg.Sync.ConnectionCache <= 0 {
		cfg.Sync.ConnectionCache = time.Minute
	}
	if cfg.Sync.JobRetention <= 0 {
		cfg.Sync.JobRetention = 7 * 24 * time.Hour
	}
	if cfg.Sync.FailingThreshold <= 0 {
		cfg.Sync.FailingThreshold = 3
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Monitoring.MetricsPath == "" {
		cfg.Monitoring.MetricsPath = "/metrics"
	}
}
