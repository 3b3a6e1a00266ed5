// Package store persists the service list and the application settings as
// TOML files. Every save replaces the whole file atomically.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Service is one persisted service description. Log paths are derived from
// Settings and are not stored.
type Service struct {
	Name       string   `toml:"name" mapstructure:"name" json:"name"`
	Executable string   `toml:"executable" mapstructure:"executable" json:"executable"`
	WorkDir    string   `toml:"work_dir" mapstructure:"work_dir" json:"work_dir"`
	Args       []string `toml:"args,omitempty" mapstructure:"args" json:"args,omitempty"`
	Env        []string `toml:"env,omitempty" mapstructure:"env" json:"env,omitempty"`
}

// Validate checks the fields a record needs to be stored. Whether the
// executable exists is checked at launch time, not here.
func (s Service) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return errors.New("name is required")
	case strings.ContainsAny(s.Name, `/\`) || s.Name == "." || s.Name == "..":
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	case strings.TrimSpace(s.Executable) == "":
		return errors.New("executable is required")
	case strings.TrimSpace(s.WorkDir) == "":
		return errors.New("work_dir is required")
	}
	return nil
}

// Settings are application-wide preferences.
type Settings struct {
	LogBasePath string `toml:"log_base_path" mapstructure:"log_base_path" json:"log_base_path"`
}

// DefaultSettings places service logs under ./logs.
func DefaultSettings() Settings {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Settings{LogBasePath: filepath.Join(wd, "logs")}
}

// Services loads and saves the ordered service list.
type Services interface {
	Load() ([]Service, error)
	Save([]Service) error
}

// SettingsStore loads and saves Settings.
type SettingsStore interface {
	Load() (Settings, error)
	Save(Settings) error
}

// writeAtomic writes data next to path and renames it into place so readers
// see either the old or the new content.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.toml")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
