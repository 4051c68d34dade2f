package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for the runtime configuration. Port and data dir mirror what the
// container image ships with; everything can be overridden by config file or
// environment before start, never after.
const (
	DefaultPort             = 8000
	DefaultWorkers          = 2
	DefaultDataDir          = "/data"
	DefaultHealthPath       = "/healthz"
	DefaultAdminPort        = 9600
	DefaultProbeInterval    = 30 * time.Second
	DefaultProbeTimeout     = 3 * time.Second
	DefaultFailureThreshold = 3
	DefaultStartPeriod      = 5 * time.Second
	DefaultGracePeriod      = 10 * time.Second
)

// Config holds every runtime knob for a supervisor instance. It is loaded once
// at process start and treated as immutable for the process lifetime; changing
// worker count or port requires a restart.
type Config struct {
	// Port the service listens on (bound once, inherited by workers).
	Port int `yaml:"port" mapstructure:"port"`

	// Workers is the number of service processes sharing the listening socket.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// Command is the worker argv. Empty means serve was invoked without a
	// workload, which is a start-time error.
	Command []string `yaml:"command" mapstructure:"command"`

	// DataDir is the writable directory for durable local state.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// HealthPath is the liveness endpoint served by the workers.
	HealthPath string `yaml:"health_path" mapstructure:"health_path"`

	// AdminPort is the loopback port for status/metrics.
	AdminPort int `yaml:"admin_port" mapstructure:"admin_port"`

	// Probe cadence and classification thresholds.
	ProbeInterval    time.Duration `yaml:"probe_interval" mapstructure:"probe_interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// StartPeriod is how long the prober waits before the first probe.
	StartPeriod time.Duration `yaml:"start_period" mapstructure:"start_period"`

	// GracePeriod bounds the SIGTERM drain before workers are killed.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`

	// AllowRoot disables the non-root preflight check. Development only.
	AllowRoot bool `yaml:"allow_root" mapstructure:"allow_root"`

	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// LogConfig controls logger behavior.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Load reads configuration exactly once: defaults, then an optional YAML file,
// then environment variables. No other code path reads the environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", DefaultPort)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("health_path", DefaultHealthPath)
	v.SetDefault("admin_port", DefaultAdminPort)
	v.SetDefault("probe_interval", DefaultProbeInterval)
	v.SetDefault("probe_timeout", DefaultProbeTimeout)
	v.SetDefault("failure_threshold", DefaultFailureThreshold)
	v.SetDefault("start_period", DefaultStartPeriod)
	v.SetDefault("grace_period", DefaultGracePeriod)
	v.SetDefault("allow_root", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("stayd")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/stayd")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STAYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// WEB_CONCURRENCY is the conventional worker-count variable the image has
	// always honored; keep it alongside the STAYD_* namespace.
	v.BindEnv("workers", "STAYD_WORKERS", "WEB_CONCURRENCY")
	v.BindEnv("port", "STAYD_PORT")
	v.BindEnv("data_dir", "STAYD_DATA_DIR")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants the supervisor depends on.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got %d", c.Port)
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		return fmt.Errorf("admin_port must be in [1, 65535], got %d", c.AdminPort)
	}
	if c.AdminPort == c.Port {
		return fmt.Errorf("admin_port must differ from service port %d", c.Port)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	}
	if c.ProbeInterval <= c.ProbeTimeout {
		return fmt.Errorf("probe_interval (%s) must be longer than probe_timeout (%s)",
			c.ProbeInterval, c.ProbeTimeout)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive, got %s", c.GracePeriod)
	}
	if !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("health_path must start with '/', got %q", c.HealthPath)
	}
	return nil
}

// HealthURL returns the local liveness URL the prober and the healthcheck
// command target.
func (c *Config) HealthURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", c.Port, c.HealthPath)
}

// ListenAddr returns the service bind address (all interfaces).
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// AdminAddr returns the loopback admin bind address.
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.AdminPort)
}

// ExampleConfig is written by `stayd config init`.
const ExampleConfig = `# stayd supervisor configuration

# Service port. Bound once by the supervisor; all workers inherit the socket.
port: 8000

# Number of worker processes sharing the listening socket.
# Also settable via WEB_CONCURRENCY.
workers: 2

# Worker command (argv). May also be given on the serve command line after "--".
command:
  - /usr/local/bin/staycircle-api

# Writable directory for durable local state, owned by the runtime user.
data_dir: /data

# Liveness endpoint served by the workers.
health_path: /healthz

# Loopback port for the supervisor's status and metrics endpoints.
admin_port: 9600

# Liveness probe cadence. The timeout must be shorter than the interval.
probe_interval: 30s
probe_timeout: 3s

# Consecutive probe failures before the instance is classified unhealthy.
failure_threshold: 3

# Delay before the first probe after worker start.
start_period: 5s

# How long workers get to drain in-flight requests on SIGTERM.
grace_period: 10s

log:
  level: info
  json: false
`
