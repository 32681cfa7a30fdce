package config

import (
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "COMMENTGUARD_CONFIG"

// Config holds high-level settings required across the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// YouTubeConfig carries the read-access API key.
type YouTubeConfig struct {
	APIKey string `yaml:"apiKey"`
}

// GeminiConfig defines how to contact the classifier.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OAuthConfig wires the delegated-identity client and the credential
// store locations.
type OAuthConfig struct {
	ClientID        string `yaml:"clientId"`
	ClientSecret    string `yaml:"clientSecret"`
	RedirectURI     string `yaml:"redirectUri"`
	CredentialsFile string `yaml:"credentialsFile"`
	StateFile       string `yaml:"stateFile"`
}

// DatabaseConfig describes the optional run-audit Postgres connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// PipelineConfig bounds one run and paces external calls.
type PipelineConfig struct {
	DefaultMaxResults int           `yaml:"defaultMaxResults"`
	ClassifyPause     time.Duration `yaml:"classifyPause"`
	ModeratePause     time.Duration `yaml:"moderatePause"`
}

// envOverrides mirrors the environment variables accepted on top of the
// YAML file.
type envOverrides struct {
	Port            int    `env:"PORT"`
	LogLevel        string `env:"LOG_LEVEL"`
	YouTubeAPIKey   string `env:"YOUTUBE_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL"`
	ClientID        string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret    string `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURI     string `env:"OAUTH_REDIRECT_URI"`
	CredentialsFile string `env:"OAUTH_CREDENTIALS_FILE"`
	StateFile       string `env:"OAUTH_STATE_FILE"`
	DatabaseDSN     string `env:"DATABASE_DSN"`
}

// Load reads `.env` (if present), then the YAML file named by
// COMMENTGUARD_CONFIG, then environment overrides, on top of defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		log.Printf("config: cannot parse environment: %v", err)
	}
	cfg.applyEnvOverrides(overrides)

	return cfg
}

func (c *Config) applyEnvOverrides(o envOverrides) {
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.YouTubeAPIKey != "" {
		c.YouTube.APIKey = o.YouTubeAPIKey
	}
	if o.GeminiAPIKey != "" {
		c.Gemini.APIKey = o.GeminiAPIKey
	}
	if o.GeminiModel != "" {
		c.Gemini.Model = o.GeminiModel
	}
	if o.ClientID != "" {
		c.OAuth.ClientID = o.ClientID
	}
	if o.ClientSecret != "" {
		c.OAuth.ClientSecret = o.ClientSecret
	}
	if o.RedirectURI != "" {
		c.OAuth.RedirectURI = o.RedirectURI
	}
	if o.CredentialsFile != "" {
		c.OAuth.CredentialsFile = o.CredentialsFile
	}
	if o.StateFile != "" {
		c.OAuth.StateFile = o.StateFile
	}
	if o.DatabaseDSN != "" {
		c.Database.DSN = o.DatabaseDSN
	}
}

func mergeConfig(base, override Config) Config {
	if override.Server.Port != 0 {
		base.Server.Port = override.Server.Port
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.YouTube.APIKey != "" {
		base.YouTube.APIKey = override.YouTube.APIKey
	}
	if override.Gemini.APIKey != "" {
		base.Gemini.APIKey = override.Gemini.APIKey
	}
	if override.Gemini.Model != "" {
		base.Gemini.Model = override.Gemini.Model
	}
	if override.OAuth.ClientID != "" {
		base.OAuth.ClientID = override.OAuth.ClientID
	}
	if override.OAuth.ClientSecret != "" {
		base.OAuth.ClientSecret = override.OAuth.ClientSecret
	}
	if override.OAuth.RedirectURI != "" {
		base.OAuth.RedirectURI = override.OAuth.RedirectURI
	}
	if override.OAuth.CredentialsFile != "" {
		base.OAuth.CredentialsFile = override.OAuth.CredentialsFile
	}
	if override.OAuth.StateFile != "" {
		base.OAuth.StateFile = override.OAuth.StateFile
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if override.Pipeline.DefaultMaxResults != 0 {
		base.Pipeline.DefaultMaxResults = override.Pipeline.DefaultMaxResults
	}
	if override.Pipeline.ClassifyPause != 0 {
		base.Pipeline.ClassifyPause = override.Pipeline.ClassifyPause
	}
	if override.Pipeline.ModeratePause != 0 {
		base.Pipeline.ModeratePause = override.Pipeline.ModeratePause
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 5000},
		Logging: LoggingConfig{Level: "info"},
		Gemini:  GeminiConfig{Model: "gemini-2.0-flash"},
		OAuth: OAuthConfig{
			RedirectURI:     "http://localhost:5000/oauth/callback",
			CredentialsFile: "credentials.json",
			StateFile:       "oauth_state",
		},
		Pipeline: PipelineConfig{
			DefaultMaxResults: 100,
			ClassifyPause:     500 * time.Millisecond,
			ModeratePause:     time.Second,
		},
	}
}
