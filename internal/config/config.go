// Package config handles configuration loading for harryAI.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file
// (~/.harryai/config.yaml unless another path is given), and the OPENAI_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/fumbl3b/harryAi/internal/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvModel   = "OPENAI_MODEL"
	EnvBaseURL = "OPENAI_BASE_URL"

	PolicyFixed    = "fixed"
	PolicySentence = "sentence"
)

// RevealConfig controls the simulated streaming of replies.
type RevealConfig struct {
	Policy     string        `yaml:"policy"`      // "fixed" or "sentence"
	Chunks     int           `yaml:"chunks"`      // target number of fragments
	Budget     time.Duration `yaml:"budget"`      // total reveal time
	Threshold  int           `yaml:"threshold"`   // below this many runes, reveal at once (fixed policy)
	TargetSize int           `yaml:"target_size"` // fragment size in runes (sentence policy, 0 = derived)
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	SystemPrompt   string        `yaml:"system_prompt"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	TokenBudget    int           `yaml:"token_budget"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Reveal         RevealConfig  `yaml:"reveal"`
	Server         ServerConfig  `yaml:"server"`
	TranscriptPath string        `yaml:"transcript_path"` // empty disables the transcript
	LogFile        string        `yaml:"log_file"`
	Debug          bool          `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:          "gpt-4o-mini",
		Temperature:    0.7,
		MaxTokens:      1500,
		RequestTimeout: 30 * time.Second,
		Reveal: RevealConfig{
			Policy:    PolicyFixed,
			Chunks:    20,
			Budget:    2500 * time.Millisecond,
			Threshold: 100,
		},
		Server: ServerConfig{Addr: ":8100"},
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".harryai"), nil
}

// DefaultPath returns the path of the default config file.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path over the defaults and applies
// environment overrides. An empty path means DefaultPath; a missing default
// file is not an error, a missing explicit file is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.APIKey = v
	}
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model = v
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
}

// Validate reports every invalid setting at once. A missing API key is not
// checked here; it surfaces when a completion is attempted.
func (c Config) Validate() error {
	var err error
	if c.Model == "" {
		err = multierr.Append(err, apperrors.NewConfigError("model", "must not be empty"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		err = multierr.Append(err, apperrors.NewConfigError("temperature", "must be between 0 and 2"))
	}
	if c.MaxTokens <= 0 {
		err = multierr.Append(err, apperrors.NewConfigError("max_tokens", "must be positive"))
	}
	if c.RequestTimeout <= 0 {
		err = multierr.Append(err, apperrors.NewConfigError("request_timeout", "must be positive"))
	}
	if c.Reveal.Policy != PolicyFixed && c.Reveal.Policy != PolicySentence {
		err = multierr.Append(err, apperrors.NewConfigError("reveal.policy", fmt.Sprintf("unknown policy %q", c.Reveal.Policy)))
	}
	if c.Reveal.Chunks <= 0 {
		err = multierr.Append(err, apperrors.NewConfigError("reveal.chunks", "must be positive"))
	}
	if c.Reveal.Budget < 0 {
		err = multierr.Append(err, apperrors.NewConfigError("reveal.budget", "must not be negative"))
	}
	if c.Server.Addr == "" {
		err = multierr.Append(err, apperrors.NewConfigError("server.addr", "must not be empty"))
	}
	return err
}
