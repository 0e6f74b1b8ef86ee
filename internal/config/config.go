// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (EDURAG_*, DATABASE_URL)
//  2. Config file (~/.edurag/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model provider, generation model, embedding model
//   - Storage: PostgreSQL connection or in-memory mode
//   - Retrieval: top-K defaults for semantic search
//   - Tutor: session idle timeout, conversation window
//   - HTTP: listen address, JWT signing secret
//
// Sensitive fields (database password, JWT secret) are masked in MarshalJSON
// so the configuration can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is.
var (
	// ErrInvalidStorageMode indicates the storage mode is not recognized.
	ErrInvalidStorageMode = errors.New("invalid storage mode")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidChunking indicates chunking parameters are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidIdleTimeout indicates the session idle timeout is out of range.
	ErrInvalidIdleTimeout = errors.New("invalid session idle timeout")

	// ErrMissingJWTSecret indicates serve mode requires a JWT secret.
	ErrMissingJWTSecret = errors.New("missing JWT secret")
)

// Storage mode identifiers used in Config.StorageMode.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// AI provider identifiers used in Config.Provider.
// ProviderLocal runs the deterministic in-process embedder and the template
// generator; it needs no API key and is the default for development.
const (
	ProviderLocal  = "local"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultLocalEmbedderModel is the model id of the in-process embedder.
const DefaultLocalEmbedderModel = "local-hash-768"

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration
	StorageMode      string `mapstructure:"storage_mode" json:"storage_mode"`
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Redis embedding cache ("" disables caching)
	RedisAddr string `mapstructure:"redis_addr" json:"redis_addr"`

	// Chunking defaults applied when a knowledge base does not set its own
	ChunkTargetSize int `mapstructure:"chunk_target_size" json:"chunk_target_size"`
	ChunkOverlap    int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Tutor configuration
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" json:"session_idle_timeout"`
	HistoryWindow      int           `mapstructure:"history_window" json:"history_window"`

	// HTTP configuration (serve mode)
	HTTPAddr  string `mapstructure:"http_addr" json:"http_addr"`
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".edurag")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings when set.
	if err := cfg.applyDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderLocal)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultLocalEmbedderModel)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("storage_mode", StoragePostgres)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "edurag")
	v.SetDefault("postgres_password", "edurag_dev_password")
	v.SetDefault("postgres_db_name", "edurag")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("redis_addr", "")

	v.SetDefault("chunk_target_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("retrieval_top_k", 8)

	v.SetDefault("session_idle_timeout", 30*time.Minute)
	v.SetDefault("history_window", 6)

	v.SetDefault("http_addr", "127.0.0.1:3500")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a failure here is a programming bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "EDURAG_PROVIDER")
	mustBind("model_name", "EDURAG_MODEL_NAME")
	mustBind("embedder_model", "EDURAG_EMBEDDER_MODEL")
	mustBind("ollama_host", "EDURAG_OLLAMA_HOST")
	mustBind("storage_mode", "EDURAG_STORAGE_MODE")
	mustBind("redis_addr", "EDURAG_REDIS_ADDR")
	mustBind("http_addr", "EDURAG_HTTP_ADDR")
	mustBind("jwt_secret", "EDURAG_JWT_SECRET")
}

// applyDatabaseURL overrides postgres settings from a postgres:// URL.
// An empty URL is a no-op.
func (c *Config) applyDatabaseURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("parsing port: %w", err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "." && db != "/" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// Validate checks the configuration, failing fast with sentinel errors.
func (c *Config) Validate() error {
	switch c.StorageMode {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorageMode, c.StorageMode)
	}

	switch c.Provider {
	case ProviderLocal, ProviderGemini, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	if c.StorageMode == StoragePostgres {
		if c.PostgresHost == "" {
			return ErrInvalidPostgresHost
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
	}

	if c.ChunkTargetSize <= 0 {
		return fmt.Errorf("%w: target size %d must be positive", ErrInvalidChunking, c.ChunkTargetSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkTargetSize {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, c.ChunkOverlap, c.ChunkTargetSize)
	}

	if c.SessionIdleTimeout < time.Minute {
		return fmt.Errorf("%w: %s is below 1m", ErrInvalidIdleTimeout, c.SessionIdleTimeout)
	}

	return nil
}

// ValidateServe performs additional checks required by serve mode.
func (c *Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("%w: secret must be at least 32 bytes", ErrMissingJWTSecret)
	}
	return nil
}

// PostgresURL returns the postgres:// connection URL for migrations and pgx.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new secret fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.JWTSecret = maskSecret(a.JWTSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
