package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultHealthPath, cfg.HealthPath)
	assert.Equal(t, DefaultProbeInterval, cfg.ProbeInterval)
	assert.Equal(t, DefaultProbeTimeout, cfg.ProbeTimeout)
	assert.Equal(t, DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, DefaultGracePeriod, cfg.GracePeriod)
	assert.False(t, cfg.AllowRoot)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stayd.yaml")
	content := `
port: 9000
workers: 4
data_dir: /tmp/state
probe_interval: 10s
probe_timeout: 2s
failure_threshold: 5
command:
  - /bin/true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "/tmp/state", cfg.DataDir)
	assert.Equal(t, 10*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, []string{"/bin/true"}, cfg.Command)
}

func TestWorkerCountFromEnvironment(t *testing.T) {
	t.Setenv("WEB_CONCURRENCY", "6")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
}

func TestStaydEnvOverridesDefaults(t *testing.T) {
	t.Setenv("STAYD_PORT", "8080")
	t.Setenv("STAYD_DATA_DIR", "/var/lib/stayd")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/var/lib/stayd", cfg.DataDir)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stayd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a number"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:             8000,
			Workers:          2,
			DataDir:          "/data",
			HealthPath:       "/healthz",
			AdminPort:        9600,
			ProbeInterval:    30 * time.Second,
			ProbeTimeout:     3 * time.Second,
			FailureThreshold: 3,
			StartPeriod:      5 * time.Second,
			GracePeriod:      10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"port out of range", func(c *Config) { c.Port = 70000 }, true},
		{"zero port", func(c *Config) { c.Port = 0 }, true},
		{"admin port collides", func(c *Config) { c.AdminPort = c.Port }, true},
		{"timeout exceeds interval", func(c *Config) { c.ProbeTimeout = time.Minute }, true},
		{"zero threshold", func(c *Config) { c.FailureThreshold = 0 }, true},
		{"zero grace period", func(c *Config) { c.GracePeriod = 0 }, true},
		{"relative health path", func(c *Config) { c.HealthPath = "healthz" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHealthURL(t *testing.T) {
	cfg := &Config{Port: 8000, HealthPath: "/healthz"}
	assert.Equal(t, "http://127.0.0.1:8000/healthz", cfg.HealthURL())
}

func TestListenAddr(t *testing.T) {
	cfg := &Config{Port: 8000, AdminPort: 9600}
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
	assert.Equal(t, "127.0.0.1:9600", cfg.AdminAddr())
}
