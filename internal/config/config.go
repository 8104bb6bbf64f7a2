// Package config loads the engine's hyperparameters and resource locations
// into a single explicit options record, read once at startup (§9 — "not
// ambient state"). Grounded on the viper-driven config loading idiom used
// across the example pack's services (e.g. zerostate's edge-node), adapted
// from flag-bound CLI config to a file-plus-environment-only record since
// this service's only command-line flag is the -config file path.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Options is the full set of recognized configuration values (§6).
type Options struct {
	LearningRate                 float64
	DiscountFactor               float64
	ExplorationRate              float64
	MaxActiveBuffer              int
	MaxHistoryBuffer             int
	AutoProcessThreshold         int
	HistoryRetentionHours        int
	AutoSaveIntervalSeconds      int
	MemoryCleanupIntervalSeconds int
	EventBusEnabled              bool
	EventConsumerGroup           string
	PersistenceURL               string
	RedisAddr                    string
}

// HistoryRetention returns the retention window as a duration.
func (o Options) HistoryRetention() time.Duration {
	return time.Duration(o.HistoryRetentionHours) * time.Hour
}

// AutoSaveInterval and MemoryCleanupInterval expose the tick periods as
// durations for the lifecycle package's timers.
func (o Options) AutoSaveInterval() time.Duration {
	return time.Duration(o.AutoSaveIntervalSeconds) * time.Second
}

func (o Options) MemoryCleanupInterval() time.Duration {
	return time.Duration(o.MemoryCleanupIntervalSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("learning_rate", 0.1)
	v.SetDefault("discount_factor", 0.95)
	v.SetDefault("exploration_rate", 0.15)
	v.SetDefault("max_active_buffer", 25)
	v.SetDefault("max_history_buffer", 1000)
	v.SetDefault("auto_process_threshold", 15)
	v.SetDefault("history_retention_hours", 72)
	v.SetDefault("auto_save_interval_seconds", 180)
	v.SetDefault("memory_cleanup_interval_seconds", 1800)
	v.SetDefault("event_bus_enabled", true)
	v.SetDefault("event_consumer_group", "rl-engine")
	v.SetDefault("persistence_url", "rl_engine.db")
	v.SetDefault("redis_addr", "localhost:6379")
}

// Load reads configuration from the optional file at configPath (if
// non-empty and present), environment variables prefixed RL_ENGINE_, and
// the §6 defaults, in increasing precedence.
func Load(configPath string) (Options, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("rl_engine")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Options{}, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	}

	opts := Options{
		LearningRate:                 v.GetFloat64("learning_rate"),
		DiscountFactor:               v.GetFloat64("discount_factor"),
		ExplorationRate:              v.GetFloat64("exploration_rate"),
		MaxActiveBuffer:              v.GetInt("max_active_buffer"),
		MaxHistoryBuffer:             v.GetInt("max_history_buffer"),
		AutoProcessThreshold:         v.GetInt("auto_process_threshold"),
		HistoryRetentionHours:        v.GetInt("history_retention_hours"),
		AutoSaveIntervalSeconds:      v.GetInt("auto_save_interval_seconds"),
		MemoryCleanupIntervalSeconds: v.GetInt("memory_cleanup_interval_seconds"),
		EventBusEnabled:              v.GetBool("event_bus_enabled"),
		EventConsumerGroup:           v.GetString("event_consumer_group"),
		PersistenceURL:               v.GetString("persistence_url"),
		RedisAddr:                    v.GetString("redis_addr"),
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate rejects hyperparameter values that would violate the engine's
// invariants before anything is wired up.
func (o Options) Validate() error {
	switch {
	case o.LearningRate <= 0 || o.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1], got %f", o.LearningRate)
	case o.ExplorationRate < 0 || o.ExplorationRate > 1:
		return fmt.Errorf("exploration_rate must be in [0, 1], got %f", o.ExplorationRate)
	case o.MaxActiveBuffer <= 0:
		return fmt.Errorf("max_active_buffer must be positive, got %d", o.MaxActiveBuffer)
	case o.MaxHistoryBuffer <= 0:
		return fmt.Errorf("max_history_buffer must be positive, got %d", o.MaxHistoryBuffer)
	case o.AutoProcessThreshold <= 0:
		return fmt.Errorf("auto_process_threshold must be positive, got %d", o.AutoProcessThreshold)
	case o.HistoryRetentionHours <= 0:
		return fmt.Errorf("history_retention_hours must be positive, got %d", o.HistoryRetentionHours)
	}
	return nil
}
