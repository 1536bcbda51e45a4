package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Provider   ProviderConfig  `mapstructure:"provider"`
	Webhook    WebhookConfig   `mapstructure:"webhook"`
	Retry      RetryConfig     `mapstructure:"retry"`
	Notifier   NotifierConfig  `mapstructure:"notifier"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// ProviderConfig points at the payment provider's event API, used by the
// dead-letter worker to re-validate events before retrying.
type ProviderConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// WebhookConfig covers the intake boundary: the shared token that
// authenticates provider callbacks and the scheduling trigger.
type WebhookConfig struct {
	Token string `mapstructure:"token"`
}

// RetryConfig tunes the dead-letter retry worker.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	BaseInterval time.Duration `mapstructure:"base_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	Interval     time.Duration `mapstructure:"interval"`
	BatchLimit   int           `mapstructure:"batch_limit"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

type PolicyConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"`
}

// NotifierConfig tunes the notification delivery worker. Its retry policy
// is deliberately looser than the webhook pipeline's.
type NotifierConfig struct {
	Workers   int           `mapstructure:"workers"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Policy    PolicyConfig  `mapstructure:"policy"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (PAYEV_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (PAYEV_*)
	v.SetEnvPrefix("PAYEV")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
