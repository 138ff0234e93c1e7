package store

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration environment variable.
const EnvPrefix = "MODSTATE_"

// Config holds runtime settings for a MemoryStore.
type Config struct {
	HistorySize        int      `env:"HISTORY_SIZE" envDefault:"64" mapstructure:"history_size"`
	ActivityEnabled    bool     `env:"ACTIVITY_ENABLED" envDefault:"false" mapstructure:"activity_enabled"`
	ActivityChannel    string   `env:"ACTIVITY_CHANNEL" envDefault:"state" mapstructure:"activity_channel"`
	ActivityNamespaces []string `env:"ACTIVITY_NAMESPACES" envSeparator:"," mapstructure:"activity_namespaces"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info" mapstructure:"log_level"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		HistorySize:     64,
		ActivityChannel: "state",
		LogLevel:        "info",
	}
}

// LoadConfig reads MODSTATE_* variables from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{Prefix: EnvPrefix})
}

// LoadConfigFromMap reads MODSTATE_* variables from environ instead of the
// process environment.
func LoadConfigFromMap(environ map[string]string) (Config, error) {
	return parseConfig(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("store: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads settings from a TOML, YAML or JSON file. MODSTATE_*
// environment variables override file values. An empty path loads defaults
// and environment only.
func LoadConfigFile(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	return decodeViper(v)
}

// WatchConfigFile loads path like LoadConfigFile and then calls onChange each
// time the file is written. A reload that fails to parse or validate is
// reported as an error with a zero Config; callers keep their previous
// settings. Pair it with MemoryStore.Reconfigure.
func WatchConfigFile(path string, onChange func(Config, error)) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, fmt.Errorf("store: watch config: path is required")
	}
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := decodeViper(v)
	if err != nil {
		return Config{}, err
	}
	if onChange != nil {
		v.OnConfigChange(func(event fsnotify.Event) {
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				return
			}
			onChange(decodeViper(v))
		})
		v.WatchConfig()
	}
	return cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("history_size", defaults.HistorySize)
	v.SetDefault("activity_enabled", defaults.ActivityEnabled)
	v.SetDefault("activity_channel", defaults.ActivityChannel)
	v.SetDefault("activity_namespaces", []string{})
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("store: read config %q: %w", path, err)
		}
	}
	return v, nil
}

func decodeViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("store: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings a MemoryStore cannot run with.
func (c Config) Validate() error {
	if c.HistorySize < 0 {
		return fmt.Errorf("store: history size must not be negative, got %d", c.HistorySize)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level. Unknown values fall back to info.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(raw) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("store: log level %q: %w", raw, err)
	}
	return level, nil
}
