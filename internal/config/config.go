// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Index     IndexConfig     `mapstructure:"index" yaml:"index"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // ollama, openai
	Model    string        `mapstructure:"model" yaml:"model"`       // model name
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"` // API endpoint (for Ollama)
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`   // API key (for OpenAI)
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`   // per-call timeout
}

// IndexConfig contains indexing configuration.
type IndexConfig struct {
	Extensions  []string `mapstructure:"extensions" yaml:"extensions"`     // allowed code-file extensions
	ExcludeDirs []string `mapstructure:"exclude_dirs" yaml:"exclude_dirs"` // directories skipped entirely
	Workers     int      `mapstructure:"workers" yaml:"workers"`           // parallel workers, 0 = NumCPU
	MaxFileSize int64    `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// SearchConfig contains search configuration.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
}

// StoreConfig contains context store configuration.
type StoreConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlitevec
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			Endpoint: "http://localhost:11434",
			Timeout:  30 * time.Second,
		},
		Index: IndexConfig{
			Extensions: []string{
				".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts",
			},
			ExcludeDirs: []string{
				"node_modules", ".git", "dist", "build", "out",
				"coverage", "vendor", ".next", ".cache",
			},
			Workers:     0, // 0 = use runtime.NumCPU()
			MaxFileSize: 1 << 20,
		},
		Search: SearchConfig{
			DefaultLimit: 5,
		},
		Store: StoreConfig{
			Provider: "sqlitevec",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .codectx directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".codectx")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// IndexDBPath returns the path to index.db.
func IndexDBPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "index.db")
}

// Load loads configuration from file, falling back to defaults.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(projectRoot)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
		warnings = append(warnings, "Using default embedding provider: ollama")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Endpoint == "" && cfg.Embedding.Provider == "ollama" {
		cfg.Embedding.Endpoint = "http://localhost:11434"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if len(cfg.Index.Extensions) == 0 {
		cfg.Index.Extensions = DefaultConfig().Index.Extensions
	}
	if len(cfg.Index.ExcludeDirs) == 0 {
		cfg.Index.ExcludeDirs = DefaultConfig().Index.ExcludeDirs
	}
	if cfg.Index.MaxFileSize == 0 {
		cfg.Index.MaxFileSize = 1 << 20
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "sqlitevec"
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(projectRoot string, cfg *Config) error {
	configDir := ConfigDir(projectRoot)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("yaml")

	v.Set("embedding", cfg.Embedding)
	v.Set("index", cfg.Index)
	v.Set("search", cfg.Search)
	v.Set("store", cfg.Store)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingProviders := map[string]bool{
		"ollama": true, "openai": true,
	}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	validStoreProviders := map[string]bool{
		"sqlitevec": true,
	}
	if !validStoreProviders[cfg.Store.Provider] {
		errs = append(errs, fmt.Errorf("invalid store provider: %s", cfg.Store.Provider))
	}

	if cfg.Index.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative: %d", cfg.Index.Workers))
	}
	if cfg.Search.DefaultLimit < 1 {
		errs = append(errs, fmt.Errorf("search default_limit must be at least 1: %d", cfg.Search.DefaultLimit))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}

	return errs
}

// Hash returns a hash of configuration that affects indexing.
// Used for detecting when reindexing is needed.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%s",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Embedding.Endpoint,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}
