// Package config loads the svcwatch daemon configuration with viper.
//
// Example svcwatch.toml:
//
//	services_file = "services.toml"
//	settings_file = "settings.toml"
//	env = ["TZ=UTC"]
//
//	[server]
//	listen = "127.0.0.1:8080"
//	base_path = "/api"
//	token = ""
//
//	[log]
//	level = "info"
//	format = "color"
//
//	[supervisor]
//	confirm_window = "5s"
//	poll_interval = "5s"
//
//	[[history]]
//	dsn = "sqlite:///var/lib/svcwatch/history.db"
//
// Every key can be overridden from the environment with the SVCWATCH_
// prefix, e.g. SVCWATCH_SERVER_LISTEN.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/svcwatch/internal/logger"
	"github.com/loykin/svcwatch/internal/supervisor"
)

const EnvPrefix = "SVCWATCH"

type Config struct {
	ServicesFile string           `mapstructure:"services_file"`
	SettingsFile string           `mapstructure:"settings_file"`
	Env          []string         `mapstructure:"env"`
	Server       ServerConfig     `mapstructure:"server"`
	Log          logger.Config    `mapstructure:"log"`
	Supervisor   SupervisorConfig `mapstructure:"supervisor"`
	History      []HistoryConfig  `mapstructure:"history"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
	// Token, when set, is required as "Authorization: Bearer <token>".
	Token string `mapstructure:"token"`
}

// SupervisorConfig holds the supervision timings plus the registry's own
// delays.
type SupervisorConfig struct {
	ConfirmWindow          time.Duration `mapstructure:"confirm_window"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	MinRestartInterval     time.Duration `mapstructure:"min_restart_interval"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	RestartGrace           time.Duration `mapstructure:"restart_grace"`
	StopJoinTimeout        time.Duration `mapstructure:"stop_join_timeout"`
	TermWait               time.Duration `mapstructure:"term_wait"`
	KillWait               time.Duration `mapstructure:"kill_wait"`
	TreeKillWait           time.Duration `mapstructure:"tree_kill_wait"`
	RestartSettle          time.Duration `mapstructure:"restart_settle"`
	StartAllSpacing        time.Duration `mapstructure:"start_all_spacing"`
}

func (s SupervisorConfig) Timings() supervisor.Timings {
	return supervisor.Timings{
		ConfirmWindow:          s.ConfirmWindow,
		PollInterval:           s.PollInterval,
		MinRestartInterval:     s.MinRestartInterval,
		MaxConsecutiveFailures: s.MaxConsecutiveFailures,
		RestartGrace:           s.RestartGrace,
		StopJoinTimeout:        s.StopJoinTimeout,
		TermWait:               s.TermWait,
		KillWait:               s.KillWait,
		TreeKillWait:           s.TreeKillWait,
	}
}

// HistoryConfig selects one history sink by DSN.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	t := supervisor.DefaultTimings()
	v.SetDefault("services_file", "services.toml")
	v.SetDefault("settings_file", "settings.toml")
	v.SetDefault("env", []string{})
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("supervisor.confirm_window", t.ConfirmWindow)
	v.SetDefault("supervisor.poll_interval", t.PollInterval)
	v.SetDefault("supervisor.min_restart_interval", t.MinRestartInterval)
	v.SetDefault("supervisor.max_consecutive_failures", t.MaxConsecutiveFailures)
	v.SetDefault("supervisor.restart_grace", t.RestartGrace)
	v.SetDefault("supervisor.stop_join_timeout", t.StopJoinTimeout)
	v.SetDefault("supervisor.term_wait", t.TermWait)
	v.SetDefault("supervisor.kill_wait", t.KillWait)
	v.SetDefault("supervisor.tree_kill_wait", t.TreeKillWait)
	v.SetDefault("supervisor.restart_settle", time.Second)
	v.SetDefault("supervisor.start_all_spacing", 200*time.Millisecond)
}

// Load reads path (TOML) over the defaults and applies SVCWATCH_* environment
// overrides. An empty path uses defaults and the environment only. Relative
// store paths are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if path != "" {
		base := filepath.Dir(path)
		c.ServicesFile = resolve(base, c.ServicesFile)
		c.SettingsFile = resolve(base, c.SettingsFile)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServicesFile) == "" {
		errs = append(errs, errors.New("services_file is required"))
	}
	if strings.TrimSpace(c.SettingsFile) == "" {
		errs = append(errs, errors.New("settings_file is required"))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path %q must start with '/'", c.Server.BasePath))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := c.Supervisor.Timings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("supervisor: %w", err))
	}
	if c.Supervisor.RestartSettle < 0 || c.Supervisor.StartAllSpacing < 0 {
		errs = append(errs, errors.New("supervisor: restart_settle and start_all_spacing must not be negative"))
	}
	for i, h := range c.History {
		if strings.TrimSpace(h.DSN) == "" {
			errs = append(errs, fmt.Errorf("history[%d]: dsn is required", i))
		}
	}
	return errors.Join(errs...)
}
