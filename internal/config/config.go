// Package config loads the core's own operational tunables — compaction
// thresholds, lock timeout, backup retention, id prefix, tombstone TTL
// bounds — from an optional beads.toml in the data directory, environment
// variables, and compiled-in defaults. This is distinct from (and does
// not replace) any user-facing CLI configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// fileName is beads.toml's name within the data directory.
const fileName = "beads.toml"

// Config holds the core's tunable parameters.
type Config struct {
	// IDPrefix is prepended to every generated issue id.
	IDPrefix string

	// LockTimeout bounds how long AcquireTimeout waits for the exclusive
	// file lock before giving up.
	LockTimeout time.Duration

	// CompactionFrameThreshold is the configured WAL record count for
	// compaction. It is only loaded and saved; nothing in this module
	// reads it, and compaction runs only when Compact is called.
	CompactionFrameThreshold int

	// CompactionByteThreshold is the configured WAL file size, in bytes,
	// for compaction. It is only loaded and saved; nothing in this module
	// reads it, and compaction runs only when Compact is called.
	CompactionByteThreshold int64

	// MaxBackupGenerations bounds the compactor's backup retention by
	// count.
	MaxBackupGenerations int

	// BackupRetentionDays bounds the compactor's backup retention by age.
	BackupRetentionDays int

	// DefaultTombstoneTTL is how long a tombstoned issue is retained
	// before it is eligible for permanent removal.
	DefaultTombstoneTTL time.Duration

	// MinTombstoneTTL is the floor below which DefaultTombstoneTTL cannot
	// be configured.
	MinTombstoneTTL time.Duration

	// EventRetentionDays is the configured audit-event retention in days.
	// Nothing in this module applies it; audit events are removed only by
	// an explicit audit Log.Prune call with its own retention argument.
	EventRetentionDays int
}

// Default returns the compiled-in defaults.
func Default() *Config {
	return &Config{
		IDPrefix:                 "bd",
		LockTimeout:              5 * time.Second,
		CompactionFrameThreshold: 500,
		CompactionByteThreshold:  8 * 1024 * 1024,
		MaxBackupGenerations:     5,
		BackupRetentionDays:      14,
		DefaultTombstoneTTL:      30 * 24 * time.Hour,
		MinTombstoneTTL:          7 * 24 * time.Hour,
		EventRetentionDays:       90,
	}
}

// Load reads beads.toml from dir (if present), layers BEADS_-prefixed
// environment variable overrides on top, and falls back to Default for
// anything left unset.
func Load(dir string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("beads")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("BEADS")
	v.AutomaticEnv()

	v.SetDefault("id_prefix", cfg.IDPrefix)
	v.SetDefault("lock_timeout_ms", cfg.LockTimeout.Milliseconds())
	v.SetDefault("compaction_frame_threshold", cfg.CompactionFrameThreshold)
	v.SetDefault("compaction_byte_threshold", cfg.CompactionByteThreshold)
	v.SetDefault("max_backup_generations", cfg.MaxBackupGenerations)
	v.SetDefault("backup_retention_days", cfg.BackupRetentionDays)
	v.SetDefault("default_tombstone_ttl_hours", int(cfg.DefaultTombstoneTTL.Hours()))
	v.SetDefault("min_tombstone_ttl_hours", int(cfg.MinTombstoneTTL.Hours()))
	v.SetDefault("event_retention_days", cfg.EventRetentionDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read beads.toml in %s: %w", dir, err)
		}
	}

	cfg.IDPrefix = v.GetString("id_prefix")
	cfg.LockTimeout = time.Duration(v.GetInt64("lock_timeout_ms")) * time.Millisecond
	cfg.CompactionFrameThreshold = v.GetInt("compaction_frame_threshold")
	cfg.CompactionByteThreshold = v.GetInt64("compaction_byte_threshold")
	cfg.MaxBackupGenerations = v.GetInt("max_backup_generations")
	cfg.BackupRetentionDays = v.GetInt("backup_retention_days")
	cfg.DefaultTombstoneTTL = time.Duration(v.GetInt("default_tombstone_ttl_hours")) * time.Hour
	cfg.MinTombstoneTTL = time.Duration(v.GetInt("min_tombstone_ttl_hours")) * time.Hour
	cfg.EventRetentionDays = v.GetInt("event_retention_days")

	if cfg.DefaultTombstoneTTL < cfg.MinTombstoneTTL {
		cfg.DefaultTombstoneTTL = cfg.MinTombstoneTTL
	}

	if _, err := os.Stat(filepath.Join(dir, fileName)); os.IsNotExist(err) {
		if err := cfg.Save(dir); err != nil {
			return nil, fmt.Errorf("write default beads.toml: %w", err)
		}
	}

	return cfg, nil
}

// tomlConfig mirrors Config with the snake_case keys beads.toml uses.
type tomlConfig struct {
	IDPrefix                 string `toml:"id_prefix"`
	LockTimeoutMS            int64  `toml:"lock_timeout_ms"`
	CompactionFrameThreshold int    `toml:"compaction_frame_threshold"`
	CompactionByteThreshold  int64  `toml:"compaction_byte_threshold"`
	MaxBackupGenerations     int    `toml:"max_backup_generations"`
	BackupRetentionDays      int    `toml:"backup_retention_days"`
	DefaultTombstoneTTLHours int    `toml:"default_tombstone_ttl_hours"`
	MinTombstoneTTLHours     int    `toml:"min_tombstone_ttl_hours"`
	EventRetentionDays       int    `toml:"event_retention_days"`
}

// Save writes cfg to beads.toml in dir, creating or overwriting it.
func (cfg *Config) Save(dir string) error {
	path := filepath.Join(dir, fileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	tc := tomlConfig{
		IDPrefix:                 cfg.IDPrefix,
		LockTimeoutMS:            cfg.LockTimeout.Milliseconds(),
		CompactionFrameThreshold: cfg.CompactionFrameThreshold,
		CompactionByteThreshold:  cfg.CompactionByteThreshold,
		MaxBackupGenerations:     cfg.MaxBackupGenerations,
		BackupRetentionDays:      cfg.BackupRetentionDays,
		DefaultTombstoneTTLHours: int(cfg.DefaultTombstoneTTL.Hours()),
		MinTombstoneTTLHours:     int(cfg.MinTombstoneTTL.Hours()),
		EventRetentionDays:       cfg.EventRetentionDays,
	}
	if err := toml.NewEncoder(f).Encode(tc); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
