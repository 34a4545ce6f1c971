package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-danfoss/internal/api"
	"github.com/nerrad567/gray-logic-danfoss/internal/device"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/database"
)

const testRegisters = `
transport:
  type: modbus
  modbus:
    port: 502
    unit_id: 1
    timeout: 1s
    registers:
      - {name: unit_serialnumber_high_word, table: input, address: 1, kind: number}
      - {name: unit_serialnumber_low_word, table: input, address: 2, kind: number}
      - {name: fan_step, table: holding, address: 10, kind: number, writable: true}
`

// writeConfig writes a config file and points GRAYLOGIC_CONFIG at it.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
	return dir
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want a config loading error", err)
	}
}

// TestRun_MissingRegisters verifies config validation stops startup.
func TestRun_MissingRegisters(t *testing.T) {
	writeConfig(t, `
device:
  id: test-unit
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
logging:
  level: error
  format: text
`)

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail without a register map")
	}
	if !strings.Contains(err.Error(), "registers") {
		t.Errorf("run() error = %v, want register validation error", err)
	}
}

// TestRun_UnreachableBroker verifies startup fails cleanly without MQTT.
func TestRun_UnreachableBroker(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, `
device:
  id: test-unit
  hostname: ""
database:
  path: "`+filepath.Join(dir, "test.db")+`"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
api:
  auth:
    jwt_secret: "0123456789abcdef0123456789abcdef"
logging:
  level: error
  format: text
`+testRegisters)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the broker is unreachable")
	}
	if !strings.Contains(err.Error(), "MQTT") {
		t.Errorf("run() error = %v, want MQTT connection error", err)
	}
}

// TestIssueToken verifies the token command signs with the configured secret.
func TestIssueToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	writeConfig(t, `
device:
  id: test-unit
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
api:
  auth:
    jwt_secret: "`+secret+`"
`+testRegisters)

	var out bytes.Buffer
	if err := issueToken(&out, []string{"installer"}); err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	claims, err := api.ParseToken(strings.TrimSpace(out.String()), secret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "installer" {
		t.Errorf("subject = %q, want installer", claims.Subject)
	}

	out.Reset()
	if err := issueToken(&out, nil); err != nil {
		t.Fatalf("issueToken() without subject error = %v", err)
	}
	claims, err = api.ParseToken(strings.TrimSpace(out.String()), secret)
	if err != nil || claims.Subject != defaultTokenSubject {
		t.Errorf("default subject = %v, %v", claims, err)
	}
}

// TestGetConfigPath_Default verifies the default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies the environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "settings.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestLoadSettings_SeedsFromConfig(t *testing.T) {
	ctx := context.Background()
	repo := device.NewSQLiteSettingsRepository(openTestDB(t).DB)
	cfg := &config.Config{Device: config.DeviceConfig{ID: "unit-1", Name: "Loft", Hostname: "10.0.0.5"}}

	got, added, err := loadSettings(ctx, repo, cfg)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if !added {
		t.Error("first load should report the device as added")
	}
	if got.Hostname != "10.0.0.5" || got.Name != "Loft" {
		t.Errorf("settings = %+v", got)
	}

	// Stored settings win over the config file afterwards.
	cfg.Device.Hostname = "10.0.0.99"
	got, added, err = loadSettings(ctx, repo, cfg)
	if err != nil {
		t.Fatalf("second loadSettings() error = %v", err)
	}
	if added {
		t.Error("second load reported the device as added")
	}
	if got.Hostname != "10.0.0.5" {
		t.Errorf("hostname = %q, want stored 10.0.0.5", got.Hostname)
	}
}

func TestLoadSettings_InvalidSeed(t *testing.T) {
	repo := device.NewSQLiteSettingsRepository(openTestDB(t).DB)
	cfg := &config.Config{Device: config.DeviceConfig{ID: "unit-1", Hostname: "bad host"}}

	if _, _, err := loadSettings(context.Background(), repo, cfg); err == nil {
		t.Fatal("loadSettings() accepted an invalid hostname")
	}
}
