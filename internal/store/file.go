package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

type servicesFile struct {
	Services []Service `toml:"services" mapstructure:"services"`
}

// FileServices keeps the service list in a TOML file as [[services]] tables.
type FileServices struct {
	path string
	log  *slog.Logger
}

func NewFileServices(path string, log *slog.Logger) *FileServices {
	if log == nil {
		log = slog.Default()
	}
	return &FileServices{path: path, log: log}
}

func (f *FileServices) Path() string { return f.path }

// Load reads the list. A missing file is an empty list. Records without a
// name are skipped.
func (f *FileServices) Load() ([]Service, error) {
	v, err := readTOML(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sf servicesFile
	if err := v.Unmarshal(&sf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	out := make([]Service, 0, len(sf.Services))
	for i, s := range sf.Services {
		if strings.TrimSpace(s.Name) == "" {
			f.log.Warn("skipping service without a name", "file", f.path, "position", i)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *FileServices) Save(services []Service) error {
	data, err := toml.Marshal(servicesFile{Services: services})
	if err != nil {
		return err
	}
	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("save %s: %w", f.path, err)
	}
	return nil
}

// FileSettings keeps Settings in a TOML file.
type FileSettings struct {
	path string
}

func NewFileSettings(path string) *FileSettings { return &FileSettings{path: path} }

// Load reads the settings, filling unset values from DefaultSettings.
func (f *FileSettings) Load() (Settings, error) {
	def := DefaultSettings()
	v, err := readTOML(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return def, nil
		}
		return Settings{}, err
	}
	v.SetDefault("log_base_path", def.LogBasePath)
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if strings.TrimSpace(s.LogBasePath) == "" {
		s.LogBasePath = def.LogBasePath
	}
	return s, nil
}

func (f *FileSettings) Save(s Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}
	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("save %s: %w", f.path, err)
	}
	return nil
}

func readTOML(path string) (*viper.Viper, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}
