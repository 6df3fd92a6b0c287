// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" yaml:"knowledge"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless           bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors    bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args               []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	InteractionTimeout time.Duration `mapstructure:"interaction_timeout" yaml:"interaction_timeout"`
	StabilityTimeout   time.Duration `mapstructure:"stability_timeout" yaml:"stability_timeout"`
	QuietPeriod        time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
	RetrySettleDelay   time.Duration `mapstructure:"retry_settle_delay" yaml:"retry_settle_delay"`
}

// AgentConfig tunes the exploration loop and its circuit breakers.
type AgentConfig struct {
	StepBudget          int     `mapstructure:"step_budget" yaml:"step_budget"`
	MaxConsecutiveFails int     `mapstructure:"max_consecutive_fails" yaml:"max_consecutive_fails"`
	MaxNoActionSteps    int     `mapstructure:"max_no_action_steps" yaml:"max_no_action_steps"`
	StepsPerSecond      float64 `mapstructure:"steps_per_second" yaml:"steps_per_second"`
}

// EmbedderKind selects the embedding provider.
type EmbedderKind string

const (
	EmbedderLocal  EmbedderKind = "local"
	EmbedderGemini EmbedderKind = "gemini"
)

// KnowledgeConfig configures the vector memory and its embedder.
type KnowledgeConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	QdrantURL   string        `mapstructure:"qdrant_url" yaml:"qdrant_url"`
	Collection  string        `mapstructure:"collection" yaml:"collection"`
	VectorSize  int           `mapstructure:"vector_size" yaml:"vector_size"`
	Embedder    EmbedderKind  `mapstructure:"embedder" yaml:"embedder"`
	GeminiModel string        `mapstructure:"gemini_model" yaml:"gemini_model"`
	GeminiKey   string        `mapstructure:"gemini_api_key" yaml:"-"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DatabaseConfig holds the run persistence connection details. Leaving the
// URL empty disables persistence (the run trace file is always written).
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ArtifactsConfig controls where screenshots and run traces land.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wander-cli")
	v.SetDefault("logger.log_file", "wander.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.interaction_timeout", "5s")
	v.SetDefault("browser.stability_timeout", "10s")
	v.SetDefault("browser.quiet_period", "500ms")
	v.SetDefault("browser.retry_settle_delay", "1s")

	// -- Agent --
	v.SetDefault("agent.step_budget", 10)
	v.SetDefault("agent.max_consecutive_fails", 5)
	v.SetDefault("agent.max_no_action_steps", 2)
	v.SetDefault("agent.steps_per_second", 2.0)

	// -- Knowledge --
	v.SetDefault("knowledge.enabled", true)
	v.SetDefault("knowledge.qdrant_url", "http://localhost:6333")
	v.SetDefault("knowledge.collection", "wander_agent_kb")
	v.SetDefault("knowledge.vector_size", 384)
	v.SetDefault("knowledge.embedder", "local")
	v.SetDefault("knowledge.gemini_model", "gemini-embedding-001")
	v.SetDefault("knowledge.timeout", "10s")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "")
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly rather than limp.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("knowledge.gemini_api_key", "WANDER_GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "WANDER_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.StepBudget <= 0 {
		return fmt.Errorf("agent.step_budget must be a positive integer")
	}
	if c.Agent.MaxConsecutiveFails <= 0 {
		return fmt.Errorf("agent.max_consecutive_fails must be a positive integer")
	}
	if c.Agent.MaxNoActionSteps <= 0 {
		return fmt.Errorf("agent.max_no_action_steps must be a positive integer")
	}
	if c.Knowledge.Enabled {
		if c.Knowledge.QdrantURL == "" {
			return fmt.Errorf("knowledge.qdrant_url is required when knowledge is enabled")
		}
		if c.Knowledge.VectorSize <= 0 {
			return fmt.Errorf("knowledge.vector_size must be a positive integer")
		}
		switch c.Knowledge.Embedder {
		case EmbedderLocal:
		case EmbedderGemini:
			if c.Knowledge.GeminiKey == "" {
				return fmt.Errorf("knowledge.gemini_api_key is required for the gemini embedder (set WANDER_GEMINI_API_KEY)")
			}
		default:
			return fmt.Errorf("unknown embedder %q (supported: local, gemini)", c.Knowledge.Embedder)
		}
	}
	return nil
}

// ArtifactsDir resolves the artifact directory, defaulting under the user's
// home directory when unset.
func (c *Config) ArtifactsDir() (string, error) {
	if c.Artifacts.Dir != "" {
		return c.Artifacts.Dir, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, ".wander"), nil
}
