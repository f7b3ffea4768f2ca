// Package config loads the layered zenus configuration: defaults, a global
// ~/.zenus/config.yaml, a project-local config.yaml, and environment
// variable overrides — in that priority order, matching the teacher's own
// Claude-Code/Gemini-CLI-style layering.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration (spec §6 environment
// variables).
type Config struct {
	StateRoot string         `mapstructure:"state_root"`
	LLM       LLMConfig      `mapstructure:"llm"`
	Router    RouterConfig   `mapstructure:"router"`
	Feedback  FeedbackConfig `mapstructure:"feedback"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Executor  ExecutorConfig `mapstructure:"executor"`
	Iterative IterativeConfig `mapstructure:"iterative"`
	Sandbox   SandboxConfig  `mapstructure:"sandbox"`
	Log       LogConfig      `mapstructure:"log"`
}

// LLMConfig configures the oracle provider/model selection.
type LLMConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// RouterConfig configures C12 tier selection.
type RouterConfig struct {
	ForceModel string `mapstructure:"force_model"`
}

// FeedbackConfig configures C18 sampling.
type FeedbackConfig struct {
	SampleRate     float64 `mapstructure:"sample_rate"`
	PromptsEnabled bool    `mapstructure:"prompts_enabled"`
}

// CacheConfig configures C6 intent cache bounds.
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	MaxEntries int `mapstructure:"max_entries"`
}

// ExecutorConfig configures C8 worker pool limits.
type ExecutorConfig struct {
	MaxWorkers          int `mapstructure:"max_workers"`
	StepDeadlineSeconds int `mapstructure:"step_deadline_seconds"`
}

// IterativeConfig configures C15's iterative sub-machine.
type IterativeConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	MaxTotal  int `mapstructure:"max_total"`
}

// SandboxConfig configures C3 path boundaries.
type SandboxConfig struct {
	AllowedRoots  []string `mapstructure:"allowed_roots"`
	ReadOnlyRoots []string `mapstructure:"read_only_roots"`
	AllowedBins   []string `mapstructure:"allowed_bins"`
	EnableNetwork bool     `mapstructure:"enable_network"`
}

// LogConfig configures zap's output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheTTL returns Cache.TTLSeconds as a time.Duration.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// StepDeadline returns Executor.StepDeadlineSeconds as a time.Duration.
func (c ExecutorConfig) StepDeadline() time.Duration {
	return time.Duration(c.StepDeadlineSeconds) * time.Second
}

// Load reads configuration in priority order: defaults -> global
// ~/.zenus/config.yaml -> project-local ./config.yaml -> ZENUS_*
// environment variables.
func Load() (*Config, error) {
	cfg, _, err := LoadWithViper()
	return cfg, err
}

// LoadWithViper is Load plus the underlying *viper.Viper instance, needed by
// Watcher to hot-reload on file changes.
func LoadWithViper() (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".zenus")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	localConfigPath := ""
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			localConfigPath = localPath
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}
	if localConfigPath != "" {
		v.SetConfigFile(localConfigPath)
	}

	v.SetEnvPrefix("ZENUS")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.StateRoot == "" {
		home, _ := os.UserHomeDir()
		cfg.StateRoot = filepath.Join(home, ".zenus", "state")
	}
	return &cfg, v, nil
}

// ValidateFile checks that path holds well-formed YAML with no keys outside
// the Config schema, without applying it. Used by `zenus doctor` to flag a
// broken config before a real command trips over it.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var probe struct {
		StateRoot string `yaml:"state_root"`
		LLM       struct {
			Provider  string `yaml:"provider"`
			Model     string `yaml:"model"`
			MaxTokens int    `yaml:"max_tokens"`
		} `yaml:"llm"`
		Router struct {
			ForceModel string `yaml:"force_model"`
		} `yaml:"router"`
		Feedback struct {
			SampleRate     float64 `yaml:"sample_rate"`
			PromptsEnabled bool    `yaml:"prompts_enabled"`
		} `yaml:"feedback"`
		Cache struct {
			TTLSeconds int `yaml:"ttl_seconds"`
			MaxEntries int `yaml:"max_entries"`
		} `yaml:"cache"`
		Executor struct {
			MaxWorkers          int `yaml:"max_workers"`
			StepDeadlineSeconds int `yaml:"step_deadline_seconds"`
		} `yaml:"executor"`
		Iterative struct {
			BatchSize int `yaml:"batch_size"`
			MaxTotal  int `yaml:"max_total"`
		} `yaml:"iterative"`
		Sandbox struct {
			AllowedRoots  []string `yaml:"allowed_roots"`
			ReadOnlyRoots []string `yaml:"read_only_roots"`
			AllowedBins   []string `yaml:"allowed_bins"`
			EnableNetwork bool     `yaml:"enable_network"`
		} `yaml:"sandbox"`
		Log struct {
			Level  string `yaml:"level"`
			Format string `yaml:"format"`
		} `yaml:"log"`
	}
	if err := dec.Decode(&probe); err != nil && err != io.EOF {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state_root", "")

	v.SetDefault("llm.provider", "local")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("router.force_model", "")

	v.SetDefault("feedback.sample_rate", 0.10)
	v.SetDefault("feedback.prompts_enabled", true)

	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.max_entries", 500)

	v.SetDefault("executor.max_workers", 4)
	v.SetDefault("executor.step_deadline_seconds", 300)

	v.SetDefault("iterative.batch_size", 12)
	v.SetDefault("iterative.max_total", 50)

	v.SetDefault("sandbox.allowed_roots", []string{})
	v.SetDefault("sandbox.read_only_roots", []string{})
	v.SetDefault("sandbox.allowed_bins", []string{"git", "npm", "pip", "docker", "systemctl"})
	v.SetDefault("sandbox.enable_network", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
