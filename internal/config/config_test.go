package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shivanishrees/malscan/internal/config"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.NotEmpty(t, cfg.Scoring.Modules)

	_, verr := cfg.Scoring.Validate()
	require.NoError(t, verr)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
storage:
  driver: sqlite
  sqlite_path: /tmp/test.db
  record_ttl_hours: 48
scoring:
  modules:
    static_analysis:
      weight: 0.5
      critical: true
      timeout_ms: 2000
      enabled: true
    threat_intel:
      weight: 0.5
      critical: false
      timeout_ms: 2000
      enabled: true
  thresholds:
    safe_max: 29
    suspicious_min: 30
    suspicious_max: 69
    malicious_min: 70
  confidence:
    minimum_required: 0.6
    critical_penalty: 0.25
    non_critical_penalty: 0.1
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, 48*time.Hour, cfg.RecordTTL())
	require.Len(t, cfg.Scoring.Modules, 2)
	require.Equal(t, 0.6, cfg.Scoring.Confidence.MinimumRequired)
	require.Equal(t, 2*time.Second, cfg.Scoring.Timeout("static_analysis"))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestDSNHelpers(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Host = "db.local"
	cfg.Database.Port = 3306
	cfg.Database.User = "scanner"
	cfg.Database.Password = "secret"
	cfg.Database.Name = "malscan"

	require.Contains(t, cfg.MySQLDSN(), "scanner:secret@tcp(db.local:3306)/malscan")
	require.Contains(t, cfg.PostgresDSN(), "host=db.local port=3306")
}
