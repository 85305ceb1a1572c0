// Package config loads ranksense settings from a YAML file, a .env file and
// RANKSENSE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fmuoria/ranksense/internal/ingestion"
	"github.com/fmuoria/ranksense/internal/llm"
	"github.com/fmuoria/ranksense/internal/scoring"
	"github.com/fmuoria/ranksense/internal/secrets"
	"github.com/fmuoria/ranksense/internal/store"
)

const (
	// AppName names the config file, the env prefix and the per-user config dir.
	AppName   = "ranksense"
	envPrefix = "RANKSENSE"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	APIToken        string        `mapstructure:"api-token"`
	APITokenFile    string        `mapstructure:"api-token-file"`
	AllowedOrigins  []string      `mapstructure:"allowed-origins"`
	MaxUploadMB     int64         `mapstructure:"max-upload-mb"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

// ScoringConfig tunes section weights and scoring concurrency.
type ScoringConfig struct {
	Weights map[string]float64 `mapstructure:"weights"`
	Workers int                `mapstructure:"workers"`
}

// Config holds application configuration
type Config struct {
	Server            ServerConfig          `mapstructure:"server"`
	LLM               llm.Config            `mapstructure:"llm"`
	Gmail             ingestion.GmailConfig `mapstructure:"gmail"`
	Store             store.Config          `mapstructure:"store"`
	Scoring           ScoringConfig         `mapstructure:"scoring"`
	UploadsDir        string                `mapstructure:"uploads-dir"`
	GoogleCredentials string                `mapstructure:"google-credentials"`
	Debug             bool                  `mapstructure:"debug"`
	JSON              bool                  `mapstructure:"json"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:3000"},
			MaxUploadMB:     32,
			ShutdownTimeout: 15 * time.Second,
		},
		LLM: llm.DefaultConfig(),
		Gmail: ingestion.GmailConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       filepath.Join(dir, "gmail-token.json"),
		},
		Store:      store.DefaultConfig(),
		Scoring:    ScoringConfig{Workers: 4},
		UploadsDir: "uploads",
	}
}

// Dir returns the per-user config directory, e.g. ~/.config/ranksense on
// Unix or %APPDATA%\ranksense on Windows. It falls back to ".ranksense".
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(base, AppName)
}

// Load reads configuration into a fresh Config using v. When path is empty
// ranksense.yaml is looked up in the working directory and then in Dir; a
// missing file is not an error. An explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	// .env is optional; real environment variables still win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, envs := range extraEnv {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.LLM.APIKey = v.GetString("llm.api-key")

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// extraEnv lists conventional variable names accepted next to RANKSENSE_*.
var extraEnv = map[string][]string{
	"llm.api-key":        {"RANKSENSE_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"llm.project-id":     {"RANKSENSE_LLM_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
	"llm.location":       {"RANKSENSE_LLM_LOCATION", "GOOGLE_CLOUD_LOCATION"},
	"server.addr":        {"RANKSENSE_SERVER_ADDR", "RANKSENSE_ADDR"},
	"server.api-token":   {"RANKSENSE_SERVER_API_TOKEN", "RANKSENSE_API_TOKEN"},
	"store.dsn":          {"RANKSENSE_STORE_DSN", "DATABASE_URL"},
	"google-credentials": {"RANKSENSE_GOOGLE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS"},
}

// setDefaults registers every key so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.api-token", "")
	v.SetDefault("server.api-token-file", "")
	v.SetDefault("server.allowed-origins", d.Server.AllowedOrigins)
	v.SetDefault("server.max-upload-mb", d.Server.MaxUploadMB)
	v.SetDefault("server.shutdown-timeout", d.Server.ShutdownTimeout)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.project-id", "")
	v.SetDefault("llm.location", d.LLM.Location)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api-key", "")
	v.SetDefault("llm.api-key-file", "")
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max-output-tokens", d.LLM.MaxOutputTokens)
	v.SetDefault("llm.request-delay", d.LLM.RequestDelay)
	v.SetDefault("llm.max-retries", d.LLM.MaxRetries)
	v.SetDefault("llm.retry-backoff", d.LLM.RetryBackoff)

	v.SetDefault("gmail.credentials-file", d.Gmail.CredentialsFile)
	v.SetDefault("gmail.token-file", d.Gmail.TokenFile)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dsn", "")

	v.SetDefault("scoring.workers", d.Scoring.Workers)
	v.SetDefault("uploads-dir", d.UploadsDir)
	v.SetDefault("google-credentials", "")
	v.SetDefault("debug", false)
	v.SetDefault("json", false)
}

// resolveSecrets reads the API token and LLM key from their files when set.
func (c *Config) resolveSecrets() error {
	token, err := secrets.LoadOptional(secrets.Source{
		Name:  "api token",
		Value: c.Server.APIToken,
		File:  c.Server.APITokenFile,
	})
	if err != nil {
		return err
	}
	c.Server.APIToken = token

	if strings.EqualFold(c.LLM.Provider, llm.ProviderGemini) {
		key, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: c.LLM.APIKey,
			File:  c.LLM.APIKeyFile,
		})
		if err != nil {
			return err
		}
		c.LLM.APIKey = key
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max-upload-mb must be positive, got %d", c.Server.MaxUploadMB)
	}

	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case "", llm.ProviderNone, llm.ProviderGemini:
	case llm.ProviderVertexAI:
		if c.LLM.ProjectID == "" && os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
			return errors.New("llm.project-id is required for vertexai")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", store.DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for sqlite")
		}
	case store.DriverPostgres, "postgresql", "pgx":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	if c.Scoring.Workers <= 0 {
		return fmt.Errorf("scoring.workers must be positive, got %d", c.Scoring.Workers)
	}
	if _, err := c.Sections(); err != nil {
		return err
	}

	if c.GoogleCredentials != "" {
		if _, err := os.Stat(c.GoogleCredentials); err != nil {
			return fmt.Errorf("google credentials file not found: %w", err)
		}
	}

	return nil
}

// Sections returns the scoring catalogue with configured weight overrides.
func (c *Config) Sections() ([]scoring.Section, error) {
	sections, err := scoring.WithWeights(scoring.DefaultSections(), c.Scoring.Weights)
	if err != nil {
		return nil, fmt.Errorf("scoring.weights: %w", err)
	}
	return sections, nil
}

// MaxUploadBytes converts the upload limit to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

// ApplyToEnv exports Google settings for client libraries that only read
// the environment.
func (c *Config) ApplyToEnv() {
	if c.LLM.ProjectID != "" {
		os.Setenv("GOOGLE_CLOUD_PROJECT", c.LLM.ProjectID)
	}
	if c.LLM.Location != "" {
		os.Setenv("GOOGLE_CLOUD_LOCATION", c.LLM.Location)
	}
	if c.GoogleCredentials != "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentials)
	}
}
