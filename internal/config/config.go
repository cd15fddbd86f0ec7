// Package config holds installer settings: paths, partitioning defaults and
// host policy. Settings come from defaults, an optional yaml file and
// ZINSTALL_-prefixed environment variables; the install plan itself lives in
// the plan package.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// AltRoot is where the new pool is rooted during installation.
	AltRoot string `mapstructure:"alt-root"`

	// EFISizeMiB is the size of the EFI system partition on every drive.
	EFISizeMiB int `mapstructure:"efi-size-mib"`

	// MinDrives is the host policy minimum for drive selection.
	MinDrives int `mapstructure:"min-drives"`

	// DefaultPoolName pre-fills the wizard's pool name prompt.
	DefaultPoolName string `mapstructure:"default-pool-name"`

	// LogPath is the append-only installer log. Best effort: an unwritable
	// log never aborts a run.
	LogPath string `mapstructure:"log-path"`

	// JournalPath is the sqlite provisioning journal.
	JournalPath string `mapstructure:"journal-path"`

	// PlanPath is where the declarative install plan is written after the
	// wizard completes. Empty disables persistence.
	PlanPath string `mapstructure:"plan-path"`
}

// Load reads configuration from defaults, config file and environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("alt-root", "/mnt")
	v.SetDefault("efi-size-mib", 512)
	v.SetDefault("min-drives", 1)
	v.SetDefault("default-pool-name", "zroot")
	v.SetDefault("log-path", "/var/log/zinstall.log")
	v.SetDefault("journal-path", "/var/lib/zinstall/journal.db")
	v.SetDefault("plan-path", "/var/lib/zinstall/plan.yaml")

	v.SetEnvPrefix("ZINSTALL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("zinstall")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/zinstall")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // optional
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.AltRoot == "" {
		return fmt.Errorf("alt-root cannot be empty")
	}
	if c.EFISizeMiB < 64 {
		return fmt.Errorf("efi-size-mib must be at least 64")
	}
	if c.MinDrives < 1 {
		return fmt.Errorf("min-drives must be at least 1")
	}
	if c.DefaultPoolName == "" {
		return fmt.Errorf("default-pool-name cannot be empty")
	}
	return nil
}
