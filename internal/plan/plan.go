// Package plan defines the install configuration the wizard emits and the
// pipeline consumes, plus its on-disk declarative form. The on-disk form never
// carries secrets.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voidforge/zinstall/internal/topology"
)

// InstallConfig is the single artifact bridging the wizard and the pipeline.
// It is constructed once and treated as immutable: the pipeline only reads it.
type InstallConfig struct {
	PoolName string        `yaml:"pool_name"`
	PoolType topology.Kind `yaml:"pool_type"`
	// Drives holds the ordered persistent-identifier paths of the selected
	// devices, e.g. /dev/disk/by-id/ata-....
	Drives []string `yaml:"selected_drives"`

	// Sizes in GiB; 0 means "remaining space" (no quota, no swap volume).
	SwapGiB int `yaml:"swap_gib"`
	RootGiB int `yaml:"root_gib"`
	HomeGiB int `yaml:"home_gib"`

	// Passthrough fields for the later system-configuration stage.
	Hostname string `yaml:"hostname,omitempty"`
	Username string `yaml:"username,omitempty"`
	Locale   string `yaml:"locale,omitempty"`

	// Secrets live only in the in-memory configuration of the current run.
	DiskPassphrase string `yaml:"-"`
	UserPassword   string `yaml:"-"`
}

// Encrypted reports whether the pipeline should set up block encryption.
func (c *InstallConfig) Encrypted() bool {
	return c.DiskPassphrase != ""
}

// Validate re-checks the configuration against the topology rules and the
// drive-set invariants. It runs in the wizard and again immediately before
// execution.
func (c *InstallConfig) Validate() error {
	if c.PoolName == "" {
		return fmt.Errorf("pool name is empty")
	}
	if len(c.Drives) == 0 {
		return fmt.Errorf("no drives selected")
	}
	seen := make(map[string]bool, len(c.Drives))
	for _, d := range c.Drives {
		if d == "" {
			return fmt.Errorf("empty drive identifier")
		}
		if seen[d] {
			return fmt.Errorf("duplicate drive %s", d)
		}
		seen[d] = true
	}
	if err := topology.Validate(c.PoolType, len(c.Drives)); err != nil {
		return err
	}
	for _, n := range []int{c.SwapGiB, c.RootGiB, c.HomeGiB} {
		if n < 0 {
			return fmt.Errorf("negative size parameter")
		}
	}
	return nil
}

// Save writes the declarative form of the configuration for audit or replay.
// Secrets are excluded by construction.
func (c *InstallConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal install plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write install plan: %w", err)
	}
	return nil
}

// Load reads a previously saved plan and validates it.
func Load(path string) (*InstallConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read install plan: %w", err)
	}
	var cfg InstallConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse install plan: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid install plan: %w", err)
	}
	return &cfg, nil
}
