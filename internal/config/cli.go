package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// CLIConfig holds configuration for the voicenote terminal recorder.
type CLIConfig struct {
	APIBaseURL     string
	Token          string
	TranscribePath string
	HealthPath     string
	UploadTimeout  time.Duration
	MaxUploadBytes int64
	MaxDuration    time.Duration
	// InputFormat and Input select the ffmpeg capture source; empty picks the
	// platform default.
	InputFormat string
	Input       string
	LogLevel    string
	LogFilename string
	// Path is the config file that was read, empty when none exists.
	Path string
}

type fileConfig struct {
	APIBaseURL     string `toml:"api_base_url"`
	Token          string `toml:"token"`
	TranscribePath string `toml:"transcribe_path"`
	HealthPath     string `toml:"health_path"`
	UploadTimeout  string `toml:"upload_timeout"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
	MaxDuration    string `toml:"max_duration"`
	InputFormat    string `toml:"input_format"`
	Input          string `toml:"input"`
	LogLevel       string `toml:"log_level"`
	LogFilename    string `toml:"log_filename"`
}

// LoadCLI reads ~/.config/voicenote/config.toml when present, then applies
// VOICENOTE_* environment overrides. A malformed file is an error; a missing
// one is not.
func LoadCLI() (*CLIConfig, error) {
	cfg := &CLIConfig{
		UploadTimeout:  DefaultUploadTimeout,
		MaxUploadBytes: DefaultMaxUploadBytes,
		LogLevel:       "warn",
	}

	if path := cliConfigPath(); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, err
		}
		if err := cfg.apply(fc); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CLIConfig) apply(fc fileConfig) error {
	c.APIBaseURL = fc.APIBaseURL
	c.Token = fc.Token
	c.TranscribePath = fc.TranscribePath
	c.HealthPath = fc.HealthPath
	c.InputFormat = fc.InputFormat
	c.Input = fc.Input
	if fc.MaxUploadBytes > 0 {
		c.MaxUploadBytes = fc.MaxUploadBytes
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	c.LogFilename = expandTilde(fc.LogFilename)
	if fc.UploadTimeout != "" {
		d, err := time.ParseDuration(fc.UploadTimeout)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("upload_timeout must be positive, got %s", fc.UploadTimeout)
		}
		c.UploadTimeout = d
	}
	if fc.MaxDuration != "" {
		d, err := time.ParseDuration(fc.MaxDuration)
		if err != nil {
			return err
		}
		c.MaxDuration = d
	}
	return nil
}

func (c *CLIConfig) applyEnvOverrides() error {
	if v := os.Getenv("VOICENOTE_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("VOICENOTE_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("VOICENOTE_INPUT"); v != "" {
		c.Input = v
	}
	if v := os.Getenv("VOICENOTE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VOICENOTE_MAX_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.MaxDuration = d
	}
	return nil
}

func cliConfigPath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "voicenote")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "voicenote")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func expandTilde(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
