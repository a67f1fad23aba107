package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

// AppName scopes the per-user config and cache directories.
const AppName = "speaky"

// ConfigName is the base name of the YAML config file.
const ConfigName = "speaky"

// DefaultCacheDir returns the platform cache directory for speaky.
func DefaultCacheDir() (string, error) {
	return gap.NewScope(gap.User, AppName).CacheDir()
}

// ConfigDirs returns the directories searched for speaky.yml, most specific
// first.
func ConfigDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, err
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}

	if c := os.Getenv("SPEAKY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	return dirs, nil
}

// DefaultConfigFile returns where a new config file is created.
func DefaultConfigFile() (string, error) {
	dirs, err := ConfigDirs()
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", errors.New("no configuration directory available")
	}
	return filepath.Join(dirs[0], ConfigName+".yml"), nil
}

// NewViper returns a viper instance with defaults set and the config file read.
// When file is empty the default locations are searched and a missing file is
// fine; an explicit file must exist and parse.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, fmt.Sprintf("unable to read config file %s", file), err)
		}
		return v, nil
	}

	dirs, err := ConfigDirs()
	if err != nil {
		return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, "could not find configuration directory", err)
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName(ConfigName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, "could not parse configuration file", err)
		}
	}
	return v, nil
}
