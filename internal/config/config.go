package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int
	NatsURL     string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	SQLitePath  string
	LogLevel    string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	LoggingEndpoint string

	MessageThreshold int
	SettleDelay      time.Duration
	InactivityQuiet  time.Duration
	ContinuousUpdate bool
	DetailedLogging  bool
	UnloadGrace      time.Duration
}

// Load reads the environment. An optional YAML overlay (CONFIG_FILE)
// is applied on top, with ${VAR} references expanded, so deployments
// can version a base config and still inject secrets via env.
func Load() (Config, error) {
	cfg := Config{
		Port:             envInt("PORT", 8600),
		NatsURL:          envStr("NATS_URL", ""),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		RedisAddr:        envStr("REDIS_ADDR", ""),
		RedisDB:          envInt("REDIS_DB", 0),
		SQLitePath:       envStr("SQLITE_PATH", "chat-sessions.db"),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		OpenAIKey:        envStr("OPENAI_API_KEY", ""),
		OpenAIModel:      envStr("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL:    envStr("OPENAI_BASE_URL", ""),
		LoggingEndpoint:  envStr("LOGGING_ENDPOINT", ""),
		MessageThreshold: envInt("MESSAGE_THRESHOLD", 6),
		SettleDelay:      envDur("SETTLE_DELAY_MS", 2000),
		InactivityQuiet:  envDur("INACTIVITY_QUIET_MS", 30000),
		ContinuousUpdate: envStr("CONTINUOUS_UPDATE", "") == "true",
		DetailedLogging:  envStr("DETAILED_LOGGING", "") == "true",
		UnloadGrace:      envDur("UNLOAD_GRACE_MS", 500),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// fileConfig mirrors the YAML overlay. Only set fields override.
type fileConfig struct {
	Port             *int    `yaml:"port"`
	NatsURL          *string `yaml:"nats_url"`
	DatabaseURL      *string `yaml:"database_url"`
	RedisAddr        *string `yaml:"redis_addr"`
	SQLitePath       *string `yaml:"sqlite_path"`
	LogLevel         *string `yaml:"log_level"`
	OpenAIKey        *string `yaml:"openai_api_key"`
	OpenAIModel      *string `yaml:"openai_model"`
	LoggingEndpoint  *string `yaml:"logging_endpoint"`
	MessageThreshold *int    `yaml:"message_threshold"`
	SettleDelayMs    *int    `yaml:"settle_delay_ms"`
	InactivityMs     *int    `yaml:"inactivity_quiet_ms"`
	ContinuousUpdate *bool   `yaml:"continuous_update"`
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.NatsURL != nil {
		c.NatsURL = *fc.NatsURL
	}
	if fc.DatabaseURL != nil {
		c.DatabaseURL = *fc.DatabaseURL
	}
	if fc.RedisAddr != nil {
		c.RedisAddr = *fc.RedisAddr
	}
	if fc.SQLitePath != nil {
		c.SQLitePath = *fc.SQLitePath
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.OpenAIKey != nil {
		c.OpenAIKey = *fc.OpenAIKey
	}
	if fc.OpenAIModel != nil {
		c.OpenAIModel = *fc.OpenAIModel
	}
	if fc.LoggingEndpoint != nil {
		c.LoggingEndpoint = *fc.LoggingEndpoint
	}
	if fc.MessageThreshold != nil {
		c.MessageThreshold = *fc.MessageThreshold
	}
	if fc.SettleDelayMs != nil {
		c.SettleDelay = time.Duration(*fc.SettleDelayMs) * time.Millisecond
	}
	if fc.InactivityMs != nil {
		c.InactivityQuiet = time.Duration(*fc.InactivityMs) * time.Millisecond
	}
	if fc.ContinuousUpdate != nil {
		c.ContinuousUpdate = *fc.ContinuousUpdate
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallbackMs int) time.Duration {
	return time.Duration(envInt(key, fallbackMs)) * time.Millisecond
}
