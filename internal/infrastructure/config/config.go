// Package config loads the runtime's configuration: model source/loading
// policy, queue bounds, session bounds, and the MCP tool-server list (spec
// §6). It follows the teacher's viper/mapstructure idiom in
// internal/infrastructure/config/config.go, retargeted from the teacher's
// gateway/telegram/persistence keys to this runtime's surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of recognized keys from spec §6.
type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Queue   QueueConfig   `mapstructure:"queue_config"`
	Session SessionConfig `mapstructure:"session_config"`
	MCP     []MCPServerConfig `mapstructure:"mcp_servers"`
	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

// ModelConfig configures model resolution and loading (spec §4.B).
type ModelConfig struct {
	Source      ModelSourceConfig `mapstructure:"source"`
	BatchSize   int               `mapstructure:"batch_size"`
	RetryConfig RetryConfigFile   `mapstructure:"retry_config"`

	// ChatTemplateFamily overrides chattemplate.DetectFamily's auto-detection:
	// "auto" (the default), "chatml", "phi3", or "fallback" for models whose
	// prompt format neither of the detected families fits.
	ChatTemplateFamily string `mapstructure:"chat_template_family"`
}

// ModelSourceConfig is the mapstructure-friendly form of the source
// discriminated union: exactly one of HuggingFace or Local should be set.
type ModelSourceConfig struct {
	HuggingFace *HuggingFaceSourceConfig `mapstructure:"huggingface"`
	Local       *LocalSourceConfig       `mapstructure:"local"`
}

type HuggingFaceSourceConfig struct {
	Repo     string `mapstructure:"repo"`
	Filename string `mapstructure:"filename"`
}

type LocalSourceConfig struct {
	Folder   string `mapstructure:"folder"`
	Filename string `mapstructure:"filename"`
}

// RetryConfigFile mirrors modelloader.RetryConfig in config-file units
// (milliseconds rather than time.Duration, matching spec §6's key names).
type RetryConfigFile struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	InitialDelayMs    int     `mapstructure:"initial_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms"`
}

// QueueConfig bounds the generation scheduler (spec §4.I).
type QueueConfig struct {
	MaxQueueSize   int           `mapstructure:"max_queue_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	WorkerThreads  int           `mapstructure:"worker_threads"`
}

// SessionConfig bounds the session store (spec §4.D).
type SessionConfig struct {
	MaxSessions    int           `mapstructure:"max_sessions"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
}

// MCPServerConfig is one entry of spec §6's mcp_servers list.
type MCPServerConfig struct {
	Name        string   `mapstructure:"name"`
	Command     string   `mapstructure:"command"`
	Args        []string `mapstructure:"args"`
	TimeoutSecs int      `mapstructure:"timeout_secs"`
}

// LogConfig configures the zap logger factory.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

// HTTPConfig configures the thin HTTP/WS boundary.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load reads config.yaml from ~/.agent-runtime or the working directory,
// applies defaults, and overlays AGENT_-prefixed environment variables
// (nested keys use '_' for '.', e.g. AGENT_MODEL_BATCH_SIZE).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(homeDir())
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateMCPNames(cfg.MCP); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agent-runtime")
}

func validateMCPNames(servers []MCPServerConfig) error {
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if seen[s.Name] {
			return fmt.Errorf("duplicate mcp_servers name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.batch_size", 512)
	v.SetDefault("model.retry_config.max_retries", 3)
	v.SetDefault("model.retry_config.initial_delay_ms", 1000)
	v.SetDefault("model.retry_config.backoff_multiplier", 2.0)
	v.SetDefault("model.retry_config.max_delay_ms", 30000)
	v.SetDefault("model.chat_template_family", "auto")

	v.SetDefault("queue_config.max_queue_size", 64)
	v.SetDefault("queue_config.request_timeout", "2m")
	v.SetDefault("queue_config.worker_threads", 1)

	v.SetDefault("session_config.max_sessions", 1000)
	v.SetDefault("session_config.session_timeout", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
}
