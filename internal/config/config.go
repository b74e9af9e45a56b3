// Package config provides application configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (NUTRICHAT_*)
//  2. Config file (~/.nutrichat/config.yaml or ./config.yaml)
//  3. Defaults
//
// Sensitive fields (the Postgres password) are masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	// DefaultModelName is the default chat model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default embedding model. Its output is
	// truncated to 768 dimensions to match the test_vectors schema.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultMaxTurns bounds the model/tool round-trips in a single turn.
	DefaultMaxTurns = 5

	// DefaultHTTPAddr is the default listen address for serve mode.
	DefaultHTTPAddr = "127.0.0.1:3500"
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`

	// Turn orchestration
	MaxTurns int `mapstructure:"max_turns" json:"max_turns"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Result pipeline
	PipelineWorkers int `mapstructure:"pipeline_workers" json:"pipeline_workers"`

	// HTTP server (serve mode)
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`
}

// Load loads configuration with env > file > defaults priority.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".nutrichat")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("NUTRICHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("max_turns", DefaultMaxTurns)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "nutrichat")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "nutrichat")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("pipeline_workers", 2)
	v.SetDefault("http_addr", DefaultHTTPAddr)
}

// PostgresURL returns the postgres:// connection URL for the configured store.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	} else {
		u.User = url.User(c.PostgresUser)
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// MarshalJSON masks sensitive fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	if a.PostgresPassword != "" {
		a.PostgresPassword = "***"
	}
	return json.Marshal(a)
}
