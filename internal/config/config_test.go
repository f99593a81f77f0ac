package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.IDPrefix != want.IDPrefix || cfg.LockTimeout != want.LockTimeout {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	toml := `id_prefix = "xy"
max_backup_generations = 9
`
	if err := os.WriteFile(filepath.Join(dir, "beads.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("write beads.toml: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IDPrefix != "xy" {
		t.Errorf("expected id_prefix xy, got %s", cfg.IDPrefix)
	}
	if cfg.MaxBackupGenerations != 9 {
		t.Errorf("expected max_backup_generations 9, got %d", cfg.MaxBackupGenerations)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BEADS_ID_PREFIX", "zz")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IDPrefix != "zz" {
		t.Errorf("expected env override zz, got %s", cfg.IDPrefix)
	}
}

func TestLoadWritesDefaultTOMLWhenMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	path := filepath.Join(dir, "beads.toml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected beads.toml to be written: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read beads.toml: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty beads.toml")
	}
}

func TestMinTombstoneTTLFloor(t *testing.T) {
	dir := t.TempDir()
	toml := `default_tombstone_ttl_hours = 1
min_tombstone_ttl_hours = 168
`
	if err := os.WriteFile(filepath.Join(dir, "beads.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("write beads.toml: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultTombstoneTTL != cfg.MinTombstoneTTL {
		t.Fatalf("expected DefaultTombstoneTTL floored to MinTombstoneTTL, got %v vs %v", cfg.DefaultTombstoneTTL, cfg.MinTombstoneTTL)
	}
}
