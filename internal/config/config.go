package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix       = "ORCH"
	DefaultFileName = "scrapectl.yaml"
)

type Config struct {
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	JobsFile        string        `mapstructure:"jobs_file" yaml:"jobs_file"`
	RunsDir         string        `mapstructure:"runs_dir" yaml:"runs_dir"`
	BaseDir         string        `mapstructure:"base_dir" yaml:"base_dir"`
	KillGrace       time.Duration `mapstructure:"kill_grace" yaml:"kill_grace"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max" yaml:"retry_backoff_max"`
	HistoryDB       string        `mapstructure:"history_db" yaml:"history_db"`
	LogFormat       string        `mapstructure:"log_format" yaml:"log_format"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
}

var defaults = map[string]any{
	"concurrency":       2,
	"jobs_file":         "jobs.yaml",
	"runs_dir":          "runs",
	"base_dir":          "",
	"kill_grace":        "1s",
	"retry_backoff":     "0s",
	"retry_backoff_max": "5m",
	"history_db":        "runs/history.db",
	"log_format":        "text",
	"log_level":         "info",
}

// Keys lists every setting name, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load layers defaults, the config file, ORCH_* environment variables and
// the given flags, in increasing priority. flags maps setting keys to the
// command line flags that override them. A missing default config file is
// not an error; a missing explicit one is.
func Load(configPath string, flags map[string]*pflag.Flag) (*Config, error) {
	v := newViper()
	if err := readFile(v, configPath); err != nil {
		return nil, err
	}
	for key, f := range flags {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(v *viper.Viper, configPath string) error {
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, ".yaml"))
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.JobsFile == "" {
		return fmt.Errorf("jobs_file is required")
	}
	if c.RunsDir == "" {
		return fmt.Errorf("runs_dir is required")
	}
	if c.KillGrace <= 0 {
		return fmt.Errorf("kill_grace must be positive, got %s", c.KillGrace)
	}
	if c.RetryBackoff < 0 || c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff must not be negative")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// Set writes one setting to the config file at path, keeping the others
// already stored there.
func Set(path, key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config file: %w", err)
	}
	v.Set(key, value)

	probe := newViper()
	for _, k := range v.AllKeys() {
		probe.Set(k, v.Get(k))
	}
	cfg, err := decode(probe)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}
