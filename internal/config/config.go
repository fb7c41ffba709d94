package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/limitwatch/limitwatch/internal/logging"
)

// Process sources and notifier modes accepted by Validate
var (
	ProcessSources = []string{"ps", "gopsutil"}
	NotifyModes    = []string{"log", "terminal", "zenity", "prompt"}
)

// Config holds all application configuration
type Config struct {
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Database DatabaseConfig `mapstructure:"database"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Web      WebConfig      `mapstructure:"web"`
	Log      LogConfig      `mapstructure:"log"`
}

// MonitorConfig holds polling cadence and extension settings
type MonitorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MinPollInterval time.Duration `mapstructure:"-"`
	MaxPollInterval time.Duration `mapstructure:"-"`
	ExtendMinutes   int           `mapstructure:"extend_minutes"` // grace granted by "Extend"
}

// RulesConfig holds the detector heuristics
type RulesConfig struct {
	Markers              []string `mapstructure:"markers"`               // window owner/title substrings
	EnforcementProcesses []string `mapstructure:"enforcement_processes"` // glob patterns on command names
	CPUTriggerThreshold  float64  `mapstructure:"cpu_trigger_threshold"`
}

// SnapshotConfig holds snapshot provider settings
type SnapshotConfig struct {
	ProcessSource  string        `mapstructure:"process_source"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	WindowTimeout  time.Duration `mapstructure:"window_timeout"`
}

// NotifyConfig selects how the user is interrupted
type NotifyConfig struct {
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty means ~/.config/limitwatch/limitwatch.db
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `mapstructure:"pid_file"`
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"` // empty means stderr
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PollInterval:    10 * time.Second,
			MinPollInterval: 1 * time.Second,
			MaxPollInterval: 300 * time.Second,
			ExtendMinutes:   15,
		},
		Rules: RulesConfig{
			Markers:              []string{"ScreenTime", "Screen Time", "Time Limit"},
			EnforcementProcesses: []string{"screentimed", "ScreenTimeAgent"},
			CPUTriggerThreshold:  90.0,
		},
		Snapshot: SnapshotConfig{
			ProcessSource:  "ps",
			ProcessTimeout: 2 * time.Second,
			WindowTimeout:  2 * time.Second,
		},
		Notify: NotifyConfig{
			Mode: "log",
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/limitwatch-%d.pid", os.Getuid()),
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10000 + os.Getuid(),
		},
		Log: LogConfig{
			Level: logging.LevelInfo,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Monitor.PollInterval < c.Monitor.MinPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be less than minimum (%v)",
			c.Monitor.PollInterval, c.Monitor.MinPollInterval)
	}

	if c.Monitor.PollInterval > c.Monitor.MaxPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be greater than maximum (%v)",
			c.Monitor.PollInterval, c.Monitor.MaxPollInterval)
	}

	if c.Monitor.ExtendMinutes < 1 {
		return fmt.Errorf("extend minutes must be positive, got %d", c.Monitor.ExtendMinutes)
	}

	if err := c.Rules.Validate(); err != nil {
		return err
	}

	if !contains(ProcessSources, c.Snapshot.ProcessSource) {
		return fmt.Errorf("unknown process source %q (valid: %s)",
			c.Snapshot.ProcessSource, strings.Join(ProcessSources, ", "))
	}

	if c.Snapshot.ProcessTimeout <= 0 || c.Snapshot.WindowTimeout <= 0 {
		return fmt.Errorf("snapshot timeouts must be positive")
	}

	if !contains(NotifyModes, c.Notify.Mode) {
		return fmt.Errorf("unknown notify mode %q (valid: %s)",
			c.Notify.Mode, strings.Join(NotifyModes, ", "))
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

// Validate checks the detector heuristics on their own, for hot reload
func (r *RulesConfig) Validate() error {
	if len(r.Markers) == 0 {
		return fmt.Errorf("at least one window marker is required")
	}
	for _, m := range r.Markers {
		if m == "" {
			return fmt.Errorf("window markers cannot be empty strings")
		}
	}
	if r.CPUTriggerThreshold <= 0 || r.CPUTriggerThreshold > 100 {
		return fmt.Errorf("cpu trigger threshold must be in (0, 100], got %v", r.CPUTriggerThreshold)
	}
	return nil
}

// SetPollInterval sets the poll interval with validation
func (c *Config) SetPollInterval(interval time.Duration) error {
	if interval < c.Monitor.MinPollInterval {
		return fmt.Errorf("poll interval cannot be less than %v", c.Monitor.MinPollInterval)
	}
	if interval > c.Monitor.MaxPollInterval {
		return fmt.Errorf("poll interval cannot be greater than %v", c.Monitor.MaxPollInterval)
	}
	c.Monitor.PollInterval = interval
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// ExtendDuration returns the grace period granted by an extension
func (c *Config) ExtendDuration() time.Duration {
	return time.Duration(c.Monitor.ExtendMinutes) * time.Minute
}

// Settings flattens the configuration into dotted viper keys. Durations are
// rendered as strings so the map round-trips through YAML and env vars.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"monitor.poll_interval":       c.Monitor.PollInterval.String(),
		"monitor.extend_minutes":      c.Monitor.ExtendMinutes,
		"rules.markers":               append([]string(nil), c.Rules.Markers...),
		"rules.enforcement_processes": append([]string(nil), c.Rules.EnforcementProcesses...),
		"rules.cpu_trigger_threshold": c.Rules.CPUTriggerThreshold,
		"snapshot.process_source":     c.Snapshot.ProcessSource,
		"snapshot.process_timeout":    c.Snapshot.ProcessTimeout.String(),
		"snapshot.window_timeout":     c.Snapshot.WindowTimeout.String(),
		"notify.mode":                 c.Notify.Mode,
		"database.path":               c.Database.Path,
		"daemon.pid_file":             c.Daemon.PIDFile,
		"web.host":                    c.Web.Host,
		"web.port":                    c.Web.Port,
		"log.level":                   c.Log.Level,
		"log.file":                    c.Log.File,
	}
}

// YAML renders the effective configuration as a config file
func (c *Config) YAML() (string, error) {
	nested := make(map[string]map[string]any)
	for key, value := range c.Settings() {
		section, name, _ := strings.Cut(key, ".")
		if nested[section] == nil {
			nested[section] = make(map[string]any)
		}
		nested[section][name] = value
	}

	data, err := yaml.Marshal(nested)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	settings := c.Settings()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Configuration:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, settings[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
