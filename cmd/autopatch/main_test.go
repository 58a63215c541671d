package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes a config file and points AUTOPATCH_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	t.Setenv("AUTOPATCH_CONFIG", configPath)
}

// rigYAML returns a minimal valid config with the database under dir,
// MQTT and InfluxDB disabled so no external services are needed.
func rigYAML(dir string) string {
	return `
rig:
  id: rig-test
  plate:
    center: {x: 0.05, y: 0.05, z: 0}
    wells:
      - id: A1
        offset: [-0.01, 0]
        radius: 0.003
  units:
    - id: pip1
      clamp_id: clamp1
      home: {x: 0, y: 0, z: 0.001}
      clean_bath: {x: 0.02, y: 0, z: 0.001}
      rinse_bath: {x: 0.022, y: 0, z: 0.001}
      reachable: [A1]
database:
  path: "` + filepath.Join(dir, "test.db") + `"
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: info
  format: text
scheduler:
  idle_poll_interval: 50ms
`
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("AUTOPATCH_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidRig verifies run fails when the rig section is
// rejected by validation.
func TestRun_InvalidRig(t *testing.T) {
	writeConfig(t, `
rig:
  id: ""
database:
  path: ./data/test.db
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a rig id")
	}
}

// TestRun_StartupAndShutdown runs the full controller with the
// simulated rig and no external services, then shuts down on context
// expiry.
func TestRun_StartupAndShutdown(t *testing.T) {
	writeConfig(t, rigYAML(t.TempDir()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

// TestGetConfigPath_Default verifies the default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("AUTOPATCH_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("AUTOPATCH_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
