// Package config handles configuration loading for drover.
// It supports XDG config paths, project-level overrides, and environment
// variables prefixed with DROVER_.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for drover.
type Config struct {
	Agent      AgentConfig      `mapstructure:"agent"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Liveness   LivenessConfig   `mapstructure:"liveness"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Fusion     FusionConfig     `mapstructure:"fusion"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
}

// AgentConfig describes how external agents are invoked.
type AgentConfig struct {
	// Command is the external agent command line. The task is appended as
	// the final argument.
	Command string `mapstructure:"command"`
	// OutputDir is where agent output files are written, relative to the
	// project root.
	OutputDir string `mapstructure:"output_dir"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	Threshold int `mapstructure:"threshold"`
	// Cooldown is how long the breaker stays open before a half-open trial.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// LivenessConfig holds stall and completion detection settings.
type LivenessConfig struct {
	// StallAfter is how long without new output before a run is stalled.
	StallAfter time.Duration `mapstructure:"stall_after"`
	// MinIndicators is the minimum count of completion-indicator phrases
	// required alongside the explicit completion marker.
	MinIndicators int `mapstructure:"min_indicators"`
	// CompletionMarker is the explicit marker agents emit when truly done.
	CompletionMarker string `mapstructure:"completion_marker"`
}

// SupervisorConfig holds fan-out engine settings.
type SupervisorConfig struct {
	MaxParallel   int           `mapstructure:"max_parallel"`
	MaxIterations int           `mapstructure:"max_iterations"`
	TimeBudget    time.Duration `mapstructure:"time_budget"`
	RestartPolicy string        `mapstructure:"restart_policy"`
	MaxRestarts   int           `mapstructure:"max_restarts"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// FusionConfig holds consensus fusion settings.
type FusionConfig struct {
	ConsensusThreshold float64 `mapstructure:"consensus_threshold"`
	MinConfidence      float64 `mapstructure:"min_confidence"`
	DefaultStrategy    string  `mapstructure:"default_strategy"`
}

// ChainConfig holds phase orchestrator settings.
type ChainConfig struct {
	Checkpoints       bool `mapstructure:"checkpoints"`
	CheckpointOnError bool `mapstructure:"checkpoint_on_error"`
	Validation        bool `mapstructure:"validation"`
	MaxRetries        int  `mapstructure:"max_retries"`
	// StrictValidation promotes advisory validation failures to phase
	// failures.
	StrictValidation bool `mapstructure:"strict_validation"`
}

// WorkspaceConfig holds isolated workspace settings.
type WorkspaceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseDir string `mapstructure:"base_dir"`
	// ValidateCommand is run inside a workspace before merge; exit status
	// decides pass/fail.
	ValidateCommand string `mapstructure:"validate_command"`
}

// setDefaults registers all default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.command", "claude -p")
	v.SetDefault("agent.output_dir", ".drover/output")

	v.SetDefault("breaker.threshold", 3)
	v.SetDefault("breaker.cooldown", 300*time.Second)

	v.SetDefault("liveness.stall_after", 15*time.Minute)
	v.SetDefault("liveness.min_indicators", 2)
	v.SetDefault("liveness.completion_marker", "ALL TASKS COMPLETE")

	v.SetDefault("supervisor.max_parallel", 3)
	v.SetDefault("supervisor.max_iterations", 10)
	v.SetDefault("supervisor.time_budget", 30*time.Minute)
	v.SetDefault("supervisor.restart_policy", "once")
	v.SetDefault("supervisor.max_restarts", 1)
	v.SetDefault("supervisor.poll_interval", 5*time.Second)

	v.SetDefault("fusion.consensus_threshold", 0.6)
	v.SetDefault("fusion.min_confidence", 7.0)
	v.SetDefault("fusion.default_strategy", "majority")

	v.SetDefault("chain.checkpoints", true)
	v.SetDefault("chain.checkpoint_on_error", false)
	v.SetDefault("chain.validation", true)
	v.SetDefault("chain.max_retries", 2)
	v.SetDefault("chain.strict_validation", false)

	v.SetDefault("workspace.enabled", false)
	v.SetDefault("workspace.base_dir", "")
	v.SetDefault("workspace.validate_command", "")
}

// ConfigDir returns the XDG config directory for drover.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "drover")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "drover")
}

// Load reads configuration from the XDG config file, an optional
// project-level .drover/config.yaml override, and DROVER_* environment
// variables, in increasing precedence.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Project-level override merges on top of the global file.
	if projectRoot != "" {
		projectFile := filepath.Join(projectRoot, ".drover", "config.yaml")
		if _, err := os.Stat(projectFile); err == nil {
			v.SetConfigFile(projectFile)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("merge project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("DROVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading any files.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
