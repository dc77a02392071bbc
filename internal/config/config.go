package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API   APIConfig   `yaml:"api"`
	OAuth OAuthConfig `yaml:"oauth"`
	Rates RatesConfig `yaml:"rates"`
}

type APIConfig struct {
	AuthBaseURL         string        `yaml:"auth_base_url"`
	AccountingBaseURL   string        `yaml:"accounting_base_url"`
	TimetrackingBaseURL string        `yaml:"timetracking_base_url"`
	TokenURL            string        `yaml:"token_url"`
	Timeout             time.Duration `yaml:"timeout"`
	RequestsPerSecond   float64       `yaml:"requests_per_second"`
}

type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	CallbackPort int    `yaml:"callback_port"`
	AuthorizeURL string `yaml:"authorize_url"`
}

type RatesConfig struct {
	// File is the rate override table. Empty means rates.yaml in the
	// config dir.
	File string `yaml:"file"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			AuthBaseURL:         "https://api.freshbooks.com/auth/api/v1",
			AccountingBaseURL:   "https://api.freshbooks.com/accounting/account",
			TimetrackingBaseURL: "https://api.freshbooks.com/timetracking/business",
			TokenURL:            "https://api.freshbooks.com/auth/oauth/token",
			Timeout:             30 * time.Second,
			RequestsPerSecond:   4,
		},
		OAuth: OAuthConfig{
			RedirectURI:  "http://localhost:8374/callback",
			CallbackPort: 8374,
			AuthorizeURL: "https://auth.freshbooks.com/oauth/authorize",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TALLY_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("TALLY_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}
	if v := os.Getenv("TALLY_REDIRECT_URI"); v != "" {
		cfg.OAuth.RedirectURI = v
	}
	if v := os.Getenv("TALLY_CALLBACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.OAuth.CallbackPort = port
		}
	}
	if v := os.Getenv("TALLY_RATES_FILE"); v != "" {
		cfg.Rates.File = v
	}
}

// RatesFile returns the path of the rate override table.
func (c *Config) RatesFile() (string, error) {
	if c.Rates.File != "" {
		return c.Rates.File, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "rates.yaml"), nil
}

// Dir returns the tally config directory. TALLY_CONFIG_DIR overrides the
// platform default (used by tests).
func Dir() (string, error) {
	if v := os.Getenv("TALLY_CONFIG_DIR"); v != "" {
		return v, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(base, "tally"), nil
}

func ensureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	return dir, nil
}
