package config

import (
	"os"
	"path/filepath"
)

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "citegraph"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// GlobalConfigPath returns the path to the per-user config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/citegraph/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// Load builds the configuration from defaults, then the YAML file at path
// (or the per-user file when path is empty), then .env and the
// environment. Flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	required := path != ""
	if path == "" {
		path = GlobalConfigPath()
	}
	if path != "" {
		if err := cfg.LoadFile(path, required); err != nil {
			return nil, err
		}
	}

	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}
