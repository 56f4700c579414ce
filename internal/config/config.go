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

	"github.com/askstream/askstream/pkg/provider"
)

// Config represents the complete configuration.
type Config struct {
	Scoring      ScoringConfig      `mapstructure:"scoring" yaml:"scoring"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding" yaml:"embedding"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval" yaml:"retrieval"`
	Ranking      RankingConfig      `mapstructure:"ranking" yaml:"ranking"`
	PostProcess  PostProcessConfig  `mapstructure:"postprocess" yaml:"postprocess"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Plugins      PluginsConfig      `mapstructure:"plugins" yaml:"plugins"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ScoringConfig contains LLM scoring provider configuration.
type ScoringConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`     // openai, ollama
	LowModel  string `mapstructure:"low_model" yaml:"low_model"`   // fast per-item ranking model
	HighModel string `mapstructure:"high_model" yaml:"high_model"` // summaries and pre-checks
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`     // ollama, openai
	Model     string `mapstructure:"model" yaml:"model"`           // model name
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"` // documents per batch
}

// RetrievalConfig contains document store configuration.
type RetrievalConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlitevec
	Path     string `mapstructure:"path" yaml:"path"`         // database path, defaults under the config dir
	Limit    int    `mapstructure:"limit" yaml:"limit"`       // candidates fetched per query
}

// RankingConfig tunes the streaming ranking stage.
type RankingConfig struct {
	MinScore       int           `mapstructure:"min_score" yaml:"min_score"`             // strict floor, results must score above it
	MaxResults     int           `mapstructure:"max_results" yaml:"max_results"`         // delivery quota per request
	EarlyThreshold int           `mapstructure:"early_threshold" yaml:"early_threshold"` // scores above it stream before fan-in
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`                 // per-item scoring call timeout
	Strict         bool          `mapstructure:"strict" yaml:"strict"`                   // surface scoring failures instead of dropping items
}

// PostProcessConfig controls the synthetic records emitted after ranking.
type PostProcessConfig struct {
	Summarize bool          `mapstructure:"summarize" yaml:"summarize"`
	MapView   bool          `mapstructure:"map_view" yaml:"map_view"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"` // summary call timeout
}

// ConversationConfig contains conversation history storage configuration.
type ConversationConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // database path, defaults under the config dir
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr    string        `mapstructure:"addr" yaml:"addr"`       // listen address
	Metrics bool          `mapstructure:"metrics" yaml:"metrics"` // expose /metrics
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"` // per-request handling timeout
}

// PluginsConfig lists external provider plugins to load at startup.
type PluginsConfig struct {
	Scoring []PluginConfig `mapstructure:"scoring" yaml:"scoring"`
}

// PluginConfig describes one plugin binary.
type PluginConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Scoring: ScoringConfig{
			Provider:  "ollama",
			LowModel:  "llama3.2",
			HighModel: "llama3.1:70b",
			Endpoint:  "http://localhost:11434",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Endpoint:  "http://localhost:11434",
			BatchSize: 32,
		},
		Retrieval: RetrievalConfig{
			Provider: "sqlitevec",
			Limit:    50,
		},
		Ranking: RankingConfig{
			MinScore:       51,
			MaxResults:     10,
			EarlyThreshold: 59,
			Timeout:        8 * time.Second,
		},
		PostProcess: PostProcessConfig{
			Summarize: true,
			MapView:   true,
			Timeout:   20 * time.Second,
		},
		Conversation: ConversationConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Addr:    ":8080",
			Metrics: true,
			Timeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .askstream directory.
func ConfigDir(root string) string {
	return filepath.Join(root, ".askstream")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), "config.yaml")
}

// DocumentDBPath returns the path to the document store database.
func DocumentDBPath(root string) string {
	return filepath.Join(ConfigDir(root), "documents.db")
}

// ConversationDBPath returns the path to the conversation history database.
func ConversationDBPath(root string) string {
	return filepath.Join(ConfigDir(root), "conversations.db")
}

// Load loads configuration from file, falling back to defaults.
func Load(root string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(root)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		cfg.applyPaths(root)
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
	if cfg.Scoring.Provider == "" {
		cfg.Scoring.Provider = "ollama"
		warnings = append(warnings, "Using default scoring provider: ollama")
	}
	if cfg.Scoring.Endpoint == "" {
		cfg.Scoring.Endpoint = "http://localhost:11434"
	}
	if cfg.Scoring.LowModel == "" {
		cfg.Scoring.LowModel = "llama3.2"
	}
	if cfg.Scoring.HighModel == "" {
		cfg.Scoring.HighModel = cfg.Scoring.LowModel
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Endpoint == "" {
		cfg.Embedding.Endpoint = "http://localhost:11434"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}

	if cfg.Retrieval.Provider == "" {
		cfg.Retrieval.Provider = "sqlitevec"
	}
	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = 50
	}

	if cfg.Ranking.MinScore == 0 {
		cfg.Ranking.MinScore = 51
	}
	if cfg.Ranking.MaxResults == 0 {
		cfg.Ranking.MaxResults = 10
	}
	if cfg.Ranking.EarlyThreshold == 0 {
		cfg.Ranking.EarlyThreshold = 59
	}
	if cfg.Ranking.Timeout == 0 {
		cfg.Ranking.Timeout = 8 * time.Second
	}

	if cfg.PostProcess.Timeout == 0 {
		cfg.PostProcess.Timeout = 20 * time.Second
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 2 * time.Minute
	}

	cfg.applyPaths(root)
	return cfg, warnings, nil
}

// applyPaths fills in database paths relative to the config dir when the
// config file does not set them.
func (c *Config) applyPaths(root string) {
	if c.Retrieval.Path == "" {
		c.Retrieval.Path = DocumentDBPath(root)
	}
	if c.Conversation.Path == "" {
		c.Conversation.Path = ConversationDBPath(root)
	}
}

// Save saves configuration to file.
func Save(root string, cfg *Config) error {
	configDir := ConfigDir(root)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(root))
	v.SetConfigType("yaml")

	v.Set("scoring", cfg.Scoring)
	v.Set("embedding", cfg.Embedding)
	v.Set("retrieval", cfg.Retrieval)
	v.Set("ranking", cfg.Ranking)
	v.Set("postprocess", cfg.PostProcess)
	v.Set("conversation", cfg.Conversation)
	v.Set("server", cfg.Server)
	v.Set("plugins", cfg.Plugins)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validScoringProviders := map[string]bool{
		"openai": true, "ollama": true,
	}
	if !validScoringProviders[cfg.Scoring.Provider] {
		// Plugins register extra scoring providers under their own names.
		if !pluginProvider(cfg, cfg.Scoring.Provider) {
			errs = append(errs, fmt.Errorf("invalid scoring provider: %s", cfg.Scoring.Provider))
		}
	}

	validEmbeddingProviders := map[string]bool{
		"ollama": true, "openai": true,
	}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	validRetrievalProviders := map[string]bool{
		"sqlitevec": true,
	}
	if !validRetrievalProviders[cfg.Retrieval.Provider] {
		errs = append(errs, fmt.Errorf("invalid retrieval provider: %s", cfg.Retrieval.Provider))
	}

	if cfg.Ranking.MinScore < 0 || cfg.Ranking.MinScore > 100 {
		errs = append(errs, fmt.Errorf("min_score must be within 0-100, got %d", cfg.Ranking.MinScore))
	}
	if cfg.Ranking.EarlyThreshold < 0 || cfg.Ranking.EarlyThreshold > 100 {
		errs = append(errs, fmt.Errorf("early_threshold must be within 0-100, got %d", cfg.Ranking.EarlyThreshold))
	}
	if cfg.Ranking.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("max_results must be at least 1, got %d", cfg.Ranking.MaxResults))
	}

	for _, p := range cfg.Plugins.Scoring {
		if p.Name == "" || p.Path == "" {
			errs = append(errs, fmt.Errorf("plugin entries need both name and path: %+v", p))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}

	return errs
}

func pluginProvider(cfg *Config, name string) bool {
	for _, p := range cfg.Plugins.Scoring {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Hash returns a hash of configuration that affects the document store.
// Used for detecting when reingestion is needed.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%s",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Retrieval.Provider,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// ScoringProviderConfig converts the scoring section to the provider
// package's config type.
func (c *Config) ScoringProviderConfig() provider.ScoringConfig {
	return provider.ScoringConfig{
		Provider:  c.Scoring.Provider,
		LowModel:  c.Scoring.LowModel,
		HighModel: c.Scoring.HighModel,
		Endpoint:  c.Scoring.Endpoint,
		APIKey:    c.Scoring.APIKey,
	}
}

// EmbeddingProviderConfig converts the embedding section to the provider
// package's config type.
func (c *Config) EmbeddingProviderConfig() provider.EmbeddingConfig {
	return provider.EmbeddingConfig{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		Endpoint:  c.Embedding.Endpoint,
		APIKey:    c.Embedding.APIKey,
		BatchSize: c.Embedding.BatchSize,
	}
}

// RetrievalProviderConfig converts the retrieval section to the provider
// package's config type.
func (c *Config) RetrievalProviderConfig() provider.RetrievalConfig {
	return provider.RetrievalConfig{
		Provider: c.Retrieval.Provider,
		Path:     c.Retrieval.Path,
	}
}
