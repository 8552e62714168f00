package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("LAUNDRY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidYAML verifies run rejects a config file that does not parse.
func TestRun_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("database: ["), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("LAUNDRY_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with unparseable config")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("LAUNDRY_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("LAUNDRY_CONFIG", "/etc/laundry/config.yaml")
	if got := getConfigPath(); got != "/etc/laundry/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}
