package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	LLM     LLMConfig
	Market  MarketConfig
	Weather WeatherConfig
	Macro   MacroConfig
	News    NewsConfig
	Google  GoogleConfig
	Agent   AgentConfig
	Outbox  OutboxConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LLMConfig struct {
	BaseURL      string
	Model        string
	APIKey       string
	SystemPrompt string
}

type MarketConfig struct {
	BaseURL string
}

type WeatherConfig struct {
	BaseURL string
	City    string
	APIKey  string
}

type MacroConfig struct {
	BaseURL string
	APIKey  string
}

type NewsConfig struct {
	BaseURL string
	APIKey  string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

type AgentConfig struct {
	TablesPath  string
	WatchTables bool
}

type OutboxConfig struct {
	PollInterval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
		},
		Market: MarketConfig{
			BaseURL: "https://query1.finance.yahoo.com",
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.weatherapi.com",
			City:    "Boston",
		},
		Macro: MacroConfig{
			BaseURL: "https://api.stlouisfed.org",
		},
		News: NewsConfig{
			BaseURL: "https://newsapi.org",
		},
		Agent: AgentConfig{
			WatchTables: true,
		},
		Outbox: OutboxConfig{
			PollInterval: "500ms",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, NOVA_* environment
// variables and the secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/nova/config.json and holds
// non-secret keys only. Secrets (API keys, the Google client secret and
// refresh token) come from the environment first and then from
// $XDG_DATA_HOME/nova/secrets.json. A missing secret is not an error: the
// feature that needs it reports itself unavailable.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), NewSecretStore())
}

// secretReader abstracts the secret store for testing.
type secretReader interface {
	Get(account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	return cfg, nil
}

func xdgDir(env string, fallback ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(append([]string{home}, fallback...)...)
	}
	return dir
}

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "nova")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "nova", "config.json")
}

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "nova", "secrets.json")
}
