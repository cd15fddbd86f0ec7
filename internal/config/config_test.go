package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AltRoot != "/mnt" {
		t.Errorf("alt-root = %q, want /mnt", cfg.AltRoot)
	}
	if cfg.EFISizeMiB != 512 {
		t.Errorf("efi-size-mib = %d, want 512", cfg.EFISizeMiB)
	}
	if cfg.MinDrives != 1 {
		t.Errorf("min-drives = %d, want 1", cfg.MinDrives)
	}
	if cfg.DefaultPoolName != "zroot" {
		t.Errorf("default-pool-name = %q, want zroot", cfg.DefaultPoolName)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zinstall.yaml")
	data := "alt-root: /target\nefi-size-mib: 1024\nmin-drives: 2\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AltRoot != "/target" {
		t.Errorf("alt-root = %q, want /target", cfg.AltRoot)
	}
	if cfg.EFISizeMiB != 1024 {
		t.Errorf("efi-size-mib = %d, want 1024", cfg.EFISizeMiB)
	}
	if cfg.MinDrives != 2 {
		t.Errorf("min-drives = %d, want 2", cfg.MinDrives)
	}
	// Unset keys keep defaults
	if cfg.DefaultPoolName != "zroot" {
		t.Errorf("default-pool-name = %q, want zroot", cfg.DefaultPoolName)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{AltRoot: "/mnt", EFISizeMiB: 512, MinDrives: 1, DefaultPoolName: "zroot"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := *cfg
	bad.EFISizeMiB = 10
	if err := bad.Validate(); err == nil {
		t.Error("expected error for tiny EFI partition")
	}

	bad = *cfg
	bad.MinDrives = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero min-drives")
	}
}
