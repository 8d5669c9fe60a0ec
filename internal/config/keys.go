package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// Secrets are stored in the secret store under their key name.
var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "NOVA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "NOVA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "llm.base_url", typ: kString, env: "NOVA_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "NOVA_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.system_prompt", typ: kString, env: "NOVA_LLM_SYSTEM_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.LLM.SystemPrompt = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.SystemPrompt },
	},
	{
		key: "llm.api_key", typ: kString, env: "NOVA_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "market.base_url", typ: kString, env: "NOVA_MARKET_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Market.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Market.BaseURL },
	},
	{
		key: "weather.base_url", typ: kString, env: "NOVA_WEATHER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Weather.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.BaseURL },
	},
	{
		key: "weather.city", typ: kString, env: "NOVA_WEATHER_CITY",
		apply:   func(cfg *Config, v any) { cfg.Weather.City = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.City },
	},
	{
		key: "weather.api_key", typ: kString, env: "NOVA_WEATHER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Weather.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.APIKey },
	},
	{
		key: "macro.base_url", typ: kString, env: "NOVA_MACRO_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Macro.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Macro.BaseURL },
	},
	{
		key: "macro.api_key", typ: kString, env: "NOVA_FRED_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Macro.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Macro.APIKey },
	},
	{
		key: "news.base_url", typ: kString, env: "NOVA_NEWS_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.News.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.News.BaseURL },
	},
	{
		key: "news.api_key", typ: kString, env: "NOVA_NEWS_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.News.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.News.APIKey },
	},
	{
		key: "google.client_id", typ: kString, env: "NOVA_GOOGLE_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Google.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientID },
	},
	{
		key: "google.client_secret", typ: kString, env: "NOVA_GOOGLE_CLIENT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Google.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientSecret },
	},
	{
		key: "google.refresh_token", typ: kString, env: "NOVA_GOOGLE_REFRESH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Google.RefreshToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.RefreshToken },
	},
	{
		key: "agent.tables_path", typ: kString, env: "NOVA_AGENT_TABLES_PATH",
		apply:   func(cfg *Config, v any) { cfg.Agent.TablesPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.TablesPath },
	},
	{
		key: "agent.watch_tables", typ: kBool, env: "NOVA_AGENT_WATCH_TABLES",
		apply:   func(cfg *Config, v any) { cfg.Agent.WatchTables = v.(bool) },
		extract: func(cfg Config) any { return cfg.Agent.WatchTables },
	},
	{
		key: "outbox.poll_interval", typ: kString, env: "NOVA_OUTBOX_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Outbox.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Outbox.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "NOVA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// applySecrets fills secrets the environment left empty from the store.
func applySecrets(cfg *Config, secrets secretReader) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
