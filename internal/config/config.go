package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`
	Env      string `toml:"env"`

	JWTSecret string   `toml:"jwt_secret"`
	JWTIssuer string   `toml:"jwt_issuer"`
	JWTTTL    Duration `toml:"jwt_ttl"`

	DatabasePath string `toml:"database_path"`

	// RedisURL enables the cross-instance relay. Empty keeps fan-out in process.
	RedisURL string `toml:"redis_url"`

	NatsURL         string   `toml:"nats_url"`
	MediaBucket     string   `toml:"media_bucket"`
	MediaBaseURL    string   `toml:"media_base_url"`
	MediaSigningKey string   `toml:"media_signing_key"`
	SignedURLTTL    Duration `toml:"signed_url_ttl"`

	OpenAIKey           string `toml:"openai_api_key"`
	OpenAIOrg           string `toml:"openai_org_id"`
	OpenAIBaseURL       string `toml:"openai_base_url"`
	EmbeddingModel      string `toml:"embedding_model"`
	EmbeddingDimensions int    `toml:"embedding_dimensions"`
	CompletionModel     string `toml:"completion_model"`
	SimilarityAlgorithm string `toml:"similarity_algorithm"`
}

// Duration lets TOML files spell durations as "1h" or "15m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Default() *Config {
	return &Config{
		Port:                "8080",
		LogLevel:            "info",
		Env:                 "development",
		JWTIssuer:           "chatter",
		JWTTTL:              Duration{24 * time.Hour},
		DatabasePath:        "chatter.db",
		NatsURL:             "nats://localhost:4222",
		MediaBucket:         "chatter-media",
		MediaBaseURL:        "http://localhost:8080",
		SignedURLTTL:        Duration{time.Hour},
		EmbeddingModel:      "text-embedding-3-large",
		EmbeddingDimensions: 256,
		CompletionModel:     "gpt-3.5-turbo",
		SimilarityAlgorithm: "dot-product",
	}
}

// Load builds the configuration from defaults, then the optional TOML file at
// path, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTTTL.Duration = getEnvDuration("JWT_TTL", cfg.JWTTTL.Duration)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.MediaBucket = getEnv("MEDIA_BUCKET", cfg.MediaBucket)
	cfg.MediaBaseURL = strings.TrimSuffix(getEnv("MEDIA_BASE_URL", cfg.MediaBaseURL), "/")
	cfg.MediaSigningKey = getEnv("MEDIA_SIGNING_KEY", cfg.MediaSigningKey)
	cfg.SignedURLTTL.Duration = getEnvDuration("SIGNED_URL_TTL", cfg.SignedURLTTL.Duration)
	cfg.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIKey)
	cfg.OpenAIOrg = getEnv("OPENAI_ORG_ID", cfg.OpenAIOrg)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDimensions = getEnvInt("EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions)
	cfg.CompletionModel = getEnv("COMPLETION_MODEL", cfg.CompletionModel)
	cfg.SimilarityAlgorithm = getEnv("SIMILARITY_ALGORITHM", cfg.SimilarityAlgorithm)

	return cfg, nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.MediaSigningKey == "" {
		errs = append(errs, errors.New("MEDIA_SIGNING_KEY is required"))
	}
	switch c.SimilarityAlgorithm {
	case "dot-product", "cosine", "euclidean":
	default:
		errs = append(errs, fmt.Errorf("unknown similarity algorithm %q", c.SimilarityAlgorithm))
	}
	if c.SignedURLTTL.Duration <= 0 {
		errs = append(errs, errors.New("SIGNED_URL_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
