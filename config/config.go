package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the API server configuration, read from the environment.
type Config struct {
	Env       string `envconfig:"APP_ENV" default:"development"`
	Port      int    `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	AllowedOrigins []string `envconfig:"WS_ALLOWED_ORIGINS"`

	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Storage  StorageConfig
	Google   GoogleConfig
	LLM      LLMConfig
	Limiter  RateLimiterConfig
	Worker   WorkerConfig

	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	HistoryTTL     time.Duration `envconfig:"HISTORY_CACHE_TTL" default:"5m"`
	AudioChunkTTL  time.Duration `envconfig:"AUDIO_CHUNK_TTL" default:"24h"`
}

type MongoConfig struct {
	URI            string `envconfig:"MONGO_URI" required:"true"`
	DB             string `envconfig:"MONGO_DB" default:"careerforge"`
	ForceTLSConfig bool   `envconfig:"MONGO_FORCE_TLS_CONFIG" default:"false"`
	InsecureTLS    bool   `envconfig:"MONGO_INSECURE_TLS" default:"false"`
}

type PostgresConfig struct {
	URI             string        `envconfig:"POSTGRES_URI" required:"true"`
	MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"100"`
	ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"POSTGRES_CONN_MAX_IDLE_TIME" default:"5m"`
}

// RedisConfig accepts a host:port address or a redis:// URL.
type RedisConfig struct {
	Addr        string        `envconfig:"REDIS_ADDR" required:"true"`
	PoolSize    int           `envconfig:"REDIS_POOL_SIZE" default:"0"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret   string `envconfig:"JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"JWT_ISSUER"`
	Audience string `envconfig:"JWT_AUDIENCE"`
}

type StorageConfig struct {
	Bucket string `envconfig:"GCS_BUCKET"`
}

type GoogleConfig struct {
	ProjectID     string `envconfig:"GOOGLE_PROJECT_ID"`
	Location      string `envconfig:"GOOGLE_LOCATION" default:"us-central1"`
	SpeechEnabled bool   `envconfig:"SPEECH_ENABLED" default:"false"`
	SpeechLang    string `envconfig:"SPEECH_LANGUAGE" default:"en-US"`
}

// LLMConfig selects the provider used for question generation and scoring.
// "none" makes the server fall back to the built-in question bank and
// heuristic evaluation.
type LLMConfig struct {
	Provider      string        `envconfig:"LLM_PROVIDER" default:"none"`
	Model         string        `envconfig:"LLM_MODEL"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL"`
	OpenAIKey     string        `envconfig:"OPENAI_API_KEY"`
	Timeout       time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
}

type RateLimiterConfig struct {
	Enabled   bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	AIMax     int64         `envconfig:"RATE_LIMIT_AI_MAX" default:"100"`
	AIWindow  time.Duration `envconfig:"RATE_LIMIT_AI_WINDOW" default:"1m"`
	APIMax    int64         `envconfig:"RATE_LIMIT_API_MAX" default:"10000"`
	APIWindow time.Duration `envconfig:"RATE_LIMIT_API_WINDOW" default:"15m"`
}

type WorkerConfig struct {
	AudioWorkers int    `envconfig:"AUDIO_WORKERS" default:"4"`
	Stream       string `envconfig:"AUDIO_STREAM" default:"interview:audio"`
	Group        string `envconfig:"AUDIO_GROUP" default:"audio-workers"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true, "test": true}
	if !validEnvs[c.Env] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		return fmt.Errorf("POSTGRES_MAX_IDLE_CONNS (%d) cannot exceed POSTGRES_MAX_OPEN_CONNS (%d)",
			c.Postgres.MaxIdleConns, c.Postgres.MaxOpenConns)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "none", "":
	case "vertex":
		if c.Google.ProjectID == "" {
			return fmt.Errorf("GOOGLE_PROJECT_ID is required for LLM_PROVIDER=vertex")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %s (must be one of: none, vertex, openai)", c.LLM.Provider)
	}
	if c.Worker.AudioWorkers < 0 {
		return fmt.Errorf("AUDIO_WORKERS must be non-negative")
	}
	return nil
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func (c *Config) IsProduction() bool { return c.Env == "production" }
