package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LIMITWATCH_MONITOR_POLL_INTERVAL=30s
const EnvPrefix = "LIMITWATCH"

// Loader reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. An explicit path must exist; with an empty
// path the default config file is used when present.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	for key, value := range Default().Settings() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return &Loader{v: v}, nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(ConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return &Loader{v: v}, nil
}

// Load decodes and validates the current configuration
func (l *Loader) Load() (*Config, error) {
	var cfg Config
	err := l.v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	defaults := Default()
	cfg.Monitor.MinPollInterval = defaults.Monitor.MinPollInterval
	cfg.Monitor.MaxPollInterval = defaults.Monitor.MaxPollInterval

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file the configuration was read from, if any
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch re-reads the config file whenever it changes and passes every valid
// result to onChange. Invalid edits are logged and ignored. It does nothing
// when no config file was read.
func (l *Loader) Watch(logger *slog.Logger, onChange func(*Config)) {
	if l.ConfigFileUsed() == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := l.Load()
		if err != nil {
			logger.Warn("ignoring config change", "file", e.Name, "err", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Load is a convenience wrapper around NewLoader(path).Load()
func Load(path string) (*Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// ConfigDir returns the directory holding the config file and database
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "limitwatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".limitwatch"
	}
	return filepath.Join(home, ".config", "limitwatch")
}

// ConfigFile returns the default config file path
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// durationHook accepts Go duration strings ("30s") as well as bare numbers,
// which are taken as seconds.
func durationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			if n, err := strconv.Atoi(s); err == nil {
				return time.Duration(n) * time.Second, nil
			}
			return time.ParseDuration(s)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		}
		return data, nil
	}
}
