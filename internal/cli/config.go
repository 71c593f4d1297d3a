// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ppacer/throttle"
)

// EnvPrefix is the prefix of environment variables overriding configuration,
// for example THROTTLE_INTERVAL=2s.
const EnvPrefix = "THROTTLE"

// NoExitCode means that the run is not stopped by a particular exit code of
// the command.
const NoExitCode = -1

// Config is the complete configuration of throttle CLI.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Backoff BackoffConfig `mapstructure:"backoff"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
	History HistoryConfig `mapstructure:"history"`
}

// RunConfig configures throttle run command.
type RunConfig struct {
	Name          string        `mapstructure:"name"`
	Interval      time.Duration `mapstructure:"interval"`
	Discipline    string        `mapstructure:"discipline"`
	MaxIterations int           `mapstructure:"max_iterations"`
	UntilExitCode int           `mapstructure:"until_exit_code"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Shell         string        `mapstructure:"shell"`
}

// BackoffConfig configures pace strategy of backoff discipline. Minimal
// interval is RunConfig.Interval. Factor greater than 1 means exponential
// backoff, otherwise interval grows linearly by Step.
type BackoffConfig struct {
	Max    time.Duration `mapstructure:"max"`
	Step   time.Duration `mapstructure:"step"`
	Factor float64       `mapstructure:"factor"`
	Repeat int           `mapstructure:"repeat"`
}

// DBConfig points to run history database. Postgres takes precedence over
// SQLite path. History is not stored when both are empty.
type DBConfig struct {
	Path     string `mapstructure:"path"`
	Postgres string `mapstructure:"postgres"`
}

// LogConfig configures CLI logs.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HistoryConfig configures throttle history command.
type HistoryConfig struct {
	Limit  int    `mapstructure:"limit"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Name:          "throttle",
			Interval:      time.Second,
			Discipline:    string(throttle.DisciplineCompensated),
			UntilExitCode: NoExitCode,
			Shell:         "sh",
		},
		Backoff: BackoffConfig{
			Max:    time.Minute,
			Step:   time.Second,
			Factor: 2.0,
			Repeat: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Limit:  20,
			Format: "text",
		},
	}
}

// Validate checks semantic correctness of the configuration.
func (c *Config) Validate() error {
	var errs []error
	if _, err := throttle.ParseDiscipline(c.Run.Discipline); err != nil {
		errs = append(errs, err)
	}
	if c.Run.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval cannot be negative, got: %v",
			c.Run.Interval))
	}
	if c.Run.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max iterations cannot be negative, got: %d",
			c.Run.MaxIterations))
	}
	if c.Run.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout cannot be negative, got: %v",
			c.Run.Timeout))
	}
	if c.Backoff.Repeat < 1 {
		errs = append(errs, fmt.Errorf("backoff repeat must be positive, got: %d",
			c.Backoff.Repeat))
	}
	if !isValidFormat(c.History.Format) {
		errs = append(errs, fmt.Errorf("invalid format %q: must be one of %v",
			c.History.Format, ValidFormats))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be console or json",
			c.Log.Format))
	}
	return errors.Join(errs...)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"name":            "run.name",
	"interval":        "run.interval",
	"discipline":      "run.discipline",
	"max-iterations":  "run.max_iterations",
	"until-exit-code": "run.until_exit_code",
	"timeout":         "run.timeout",
	"shell":           "run.shell",
	"backoff-max":     "backoff.max",
	"backoff-step":    "backoff.step",
	"backoff-factor":  "backoff.factor",
	"backoff-repeat":  "backoff.repeat",
	"db":              "db.path",
	"postgres":        "db.postgres",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"limit":           "history.limit",
	"format":          "history.format",
}

// Loader loads Config with the following precedence: defaults < config file
// < environment variables < command line flags.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader. When configFile is empty,
// config.yaml is searched in $XDG_CONFIG_HOME/throttle, ~/.config/throttle
// and the current directory. Missing config file is not an error then.
func NewLoader(configFile string) *Loader {
	return &Loader{v: viper.New(), configFile: configFile}
}

// Load loads configuration. Only flags which are defined in the given flag
// set are bound, flags can be nil.
func (l *Loader) Load(flags *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.bindFlags(flags); err != nil {
		return nil, err
	}
	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DB.Path = expandTilde(cfg.DB.Path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns path of the loaded config file or empty string.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "throttle"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "throttle"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.setDefaults(cfg)
	v.AutomaticEnv()
}

// setDefaults registers every key in viper. Unmarshal considers environment
// variables only for known keys.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v
	v.SetDefault("run.name", cfg.Run.Name)
	v.SetDefault("run.interval", cfg.Run.Interval)
	v.SetDefault("run.discipline", cfg.Run.Discipline)
	v.SetDefault("run.max_iterations", cfg.Run.MaxIterations)
	v.SetDefault("run.until_exit_code", cfg.Run.UntilExitCode)
	v.SetDefault("run.timeout", cfg.Run.Timeout)
	v.SetDefault("run.shell", cfg.Run.Shell)

	v.SetDefault("backoff.max", cfg.Backoff.Max)
	v.SetDefault("backoff.step", cfg.Backoff.Step)
	v.SetDefault("backoff.factor", cfg.Backoff.Factor)
	v.SetDefault("backoff.repeat", cfg.Backoff.Repeat)

	v.SetDefault("db.path", cfg.DB.Path)
	v.SetDefault("db.postgres", cfg.DB.Postgres)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("history.limit", cfg.History.Limit)
	v.SetDefault("history.format", cfg.History.Format)
}

func (l *Loader) bindFlags(flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for flagName, key := range flagKeys {
		f := flags.Lookup(flagName)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("cannot bind flag --%s: %w", flagName, err)
		}
	}
	return nil
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}
	err := l.v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if l.configFile == "" && errors.As(err, &notFound) {
		return nil
	}
	return err
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
