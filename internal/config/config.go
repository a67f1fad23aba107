// Package config loads the settings of a speaky invocation from defaults, a
// YAML config file, a .env file, the environment, and command-line overrides,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

// Defaults for the remote synthesis request.
const (
	DefaultModel        = "gpt-4o-mini-tts"
	DefaultVoice        = "nova"
	DefaultInstructions = "Speak in a cheerful, positive yet professional tone."
	DefaultTimeout      = 2 * time.Minute

	// FormatMP3 is the only output encoding; cache entries are .mp3 files.
	FormatMP3 = "mp3"
)

// Playback backends.
const (
	PlayerAuto    = "auto"
	PlayerOto     = "oto"
	PlayerCommand = "command"
)

// APIKeyEnv is the environment variable holding the service credential.
const APIKeyEnv = "OPENAI_API_KEY"

// DotEnvFile is loaded from the working directory before the environment is read.
const DotEnvFile = ".env"

// Settings is the validated configuration for one invocation.
type Settings struct {
	APIKey  string `mapstructure:"-" env:"OPENAI_API_KEY"`
	BaseURL string `mapstructure:"base_url" env:"OPENAI_BASE_URL"`

	Model        string `mapstructure:"model" env:"SPEAKY_MODEL"`
	Voice        string `mapstructure:"voice" env:"SPEAKY_VOICE"`
	Instructions string `mapstructure:"instructions" env:"SPEAKY_INSTRUCTIONS"`
	Format       string `mapstructure:"-"`

	CacheDir string        `mapstructure:"cache_dir" env:"SPEAKY_CACHE_DIR"`
	Timeout  time.Duration `mapstructure:"timeout" env:"SPEAKY_TIMEOUT"`

	Player        string `mapstructure:"player" env:"SPEAKY_PLAYER"`
	PlayerCommand string `mapstructure:"player_command" env:"SPEAKY_PLAYER_COMMAND"`

	Debug bool `mapstructure:"debug" env:"SPEAKY_DEBUG"`
}

// Overrides are values given on the command line. Empty fields are ignored.
type Overrides struct {
	Model        string
	Voice        string
	Instructions string
	Player       string
	Debug        bool
}

// DefaultSettings returns Settings with every optional field at its default.
// CacheDir is left empty and resolved by Load.
func DefaultSettings() Settings {
	return Settings{
		Model:        DefaultModel,
		Voice:        DefaultVoice,
		Instructions: DefaultInstructions,
		Format:       FormatMP3,
		Timeout:      DefaultTimeout,
		Player:       PlayerAuto,
	}
}

// SetDefaults registers the file-configurable defaults on v.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("base_url", "")
	v.SetDefault("model", d.Model)
	v.SetDefault("voice", d.Voice)
	v.SetDefault("instructions", d.Instructions)
	v.SetDefault("cache_dir", "")
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("player", d.Player)
	v.SetDefault("player_command", "")
	v.SetDefault("debug", false)
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ttypes.ConfigError(ttypes.CodeInvalidConfig, fmt.Sprintf("unable to parse %s", path), err)
	}
	return nil
}

// Load resolves Settings from v (defaults and config file), the environment,
// and o. The credential must be present and non-empty.
func Load(v *viper.Viper, o Overrides) (*Settings, error) {
	s, err := resolve(v, o)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadWithoutCredential resolves Settings like Load but does not require the
// credential. Cache maintenance commands use it.
func LoadWithoutCredential(v *viper.Viper, o Overrides) (*Settings, error) {
	s, err := resolve(v, o)
	if err != nil {
		return nil, err
	}
	if err := s.validateOptions(); err != nil {
		return nil, err
	}
	return s, nil
}

func resolve(v *viper.Viper, o Overrides) (*Settings, error) {
	s := DefaultSettings()

	if v != nil {
		if err := v.Unmarshal(&s); err != nil {
			return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, "unable to decode config file", err)
		}
	}

	if err := env.Parse(&s); err != nil {
		return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, "unable to parse environment", err)
	}

	o.apply(&s)
	s.Format = FormatMP3
	s.APIKey = strings.TrimSpace(s.APIKey)

	if s.CacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, "unable to determine cache directory", err)
		}
		s.CacheDir = dir
	} else {
		dir, err := homedir.Expand(s.CacheDir)
		if err != nil {
			return nil, ttypes.ConfigError(ttypes.CodeInvalidConfig, fmt.Sprintf("unable to expand cache directory %q", s.CacheDir), err)
		}
		s.CacheDir = dir
	}

	return &s, nil
}

func (o Overrides) apply(s *Settings) {
	if o.Model != "" {
		s.Model = o.Model
	}
	if o.Voice != "" {
		s.Voice = o.Voice
	}
	if o.Instructions != "" {
		s.Instructions = o.Instructions
	}
	if o.Player != "" {
		s.Player = o.Player
	}
	if o.Debug {
		s.Debug = true
	}
}

// Validate checks that s is usable for synthesis.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.APIKey) == "" {
		return ttypes.ConfigError(ttypes.CodeMissingCredential,
			fmt.Sprintf("%s not found in environment variables; add it to your environment or a %s file", APIKeyEnv, DotEnvFile), nil)
	}
	return s.validateOptions()
}

func (s *Settings) validateOptions() error {
	if s.Model == "" {
		return ttypes.ConfigError(ttypes.CodeInvalidConfig, "model must not be empty", nil)
	}
	if s.Voice == "" {
		return ttypes.ConfigError(ttypes.CodeInvalidConfig, "voice must not be empty", nil)
	}
	if s.Format != FormatMP3 {
		return ttypes.ConfigError(ttypes.CodeInvalidConfig, fmt.Sprintf("unsupported output format %q", s.Format), nil)
	}
	if s.Timeout < 0 {
		return ttypes.ConfigError(ttypes.CodeInvalidConfig, fmt.Sprintf("timeout must not be negative, got %s", s.Timeout), nil)
	}
	switch s.Player {
	case PlayerAuto, PlayerOto, PlayerCommand:
	default:
		return ttypes.ConfigError(ttypes.CodeInvalidConfig,
			fmt.Sprintf("player must be one of %s, %s or %s, got %q", PlayerAuto, PlayerOto, PlayerCommand, s.Player), nil)
	}
	if s.CacheDir == "" {
		return ttypes.ConfigError(ttypes.CodeInvalidConfig, "cache directory must not be empty", nil)
	}
	return nil
}
