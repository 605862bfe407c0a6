// Package config loads harness configuration from environment variables,
// a YAML config file, and defaults, the way the pack's kdlbs-kandev
// internal/common/config package does for its own server. Grounded
// directly on that file's shape (nested mapstructure-tagged sections,
// setDefaults/validate split, env prefix plus SetEnvKeyReplacer,
// ReadInConfig tolerating a missing file), narrowed to this module's
// domain: transport listen addresses, provider credentials/models,
// and recording/persistence backend selection.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type (
	// Config holds every configuration section the harness needs to
	// start a run.
	Config struct {
		Server      ServerConfig      `mapstructure:"server"`
		Providers   ProvidersConfig   `mapstructure:"providers"`
		Recording   RecordingConfig   `mapstructure:"recording"`
		Persistence PersistenceConfig `mapstructure:"persistence"`
		Logging     LoggingConfig     `mapstructure:"logging"`
	}

	// ServerConfig configures the outward-facing transport channels.
	ServerConfig struct {
		WSAddr   string `mapstructure:"wsAddr"`
		GRPCAddr string `mapstructure:"grpcAddr"`
	}

	// ProvidersConfig configures the model providers a reactive.Config
	// can be wired against.
	ProvidersConfig struct {
		Anthropic ProviderConfig `mapstructure:"anthropic"`
		OpenAI    ProviderConfig `mapstructure:"openai"`
		Bedrock   ProviderConfig `mapstructure:"bedrock"`
	}

	// ProviderConfig configures a single provider adapter.
	ProviderConfig struct {
		APIKey      string  `mapstructure:"apiKey"`
		Model       string  `mapstructure:"model"`
		MaxTokens   int     `mapstructure:"maxTokens"`
		Temperature float64 `mapstructure:"temperature"`
		// RateLimitPerSecond throttles outbound provider calls. Zero
		// disables throttling.
		RateLimitPerSecond float64 `mapstructure:"rateLimitPerSecond"`
	}

	// RecordingConfig selects and configures the recording.Store backend.
	RecordingConfig struct {
		// Backend is one of "memory", "file", "mongo", "redis".
		Backend    string `mapstructure:"backend"`
		FilePath   string `mapstructure:"filePath"`
		MongoURI   string `mapstructure:"mongoUri"`
		MongoDB    string `mapstructure:"mongoDatabase"`
		RedisAddr  string `mapstructure:"redisAddr"`
	}

	// PersistenceConfig configures the Mongo-backed snapshot/session
	// stores.
	PersistenceConfig struct {
		MongoURI string `mapstructure:"mongoUri"`
		MongoDB  string `mapstructure:"mongoDatabase"`
	}

	// LoggingConfig configures the telemetry.Logger backend.
	LoggingConfig struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.wsAddr", ":8080")
	v.SetDefault("server.grpcAddr", ":9090")

	v.SetDefault("providers.anthropic.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("providers.anthropic.maxTokens", 4096)
	v.SetDefault("providers.openai.model", "gpt-4o")
	v.SetDefault("providers.openai.maxTokens", 4096)
	v.SetDefault("providers.bedrock.model", "anthropic.claude-3-5-sonnet-20241022-v2:0")
	v.SetDefault("providers.bedrock.maxTokens", 4096)

	v.SetDefault("recording.backend", "memory")
	v.SetDefault("recording.filePath", "./harness-recordings")
	v.SetDefault("recording.mongoDatabase", "harness")
	v.SetDefault("recording.redisAddr", "localhost:6379")

	v.SetDefault("persistence.mongoDatabase", "harness")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads configuration from the default locations: environment
// variables prefixed HARNESS_, a config.yaml in the current directory
// or /etc/harness/, and compiled-in defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration, additionally searching configPath
// for config.yaml when non-empty.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HARNESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/harness/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Recording.Backend != "memory" && cfg.Recording.Backend != "file" &&
		cfg.Recording.Backend != "mongo" && cfg.Recording.Backend != "redis" {
		errs = append(errs, `recording.backend must be one of: memory, file, mongo, redis`)
	}
	if cfg.Recording.Backend == "mongo" && cfg.Recording.MongoURI == "" {
		errs = append(errs, "recording.mongoUri is required when recording.backend is mongo")
	}
	if cfg.Recording.Backend == "redis" && cfg.Recording.RedisAddr == "" {
		errs = append(errs, "recording.redisAddr is required when recording.backend is redis")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
