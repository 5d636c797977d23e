// Package config loads process configuration from environment variables,
// plus the persona defaults yaml seeded into the KV store at startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/click-gz/deskpet-backend/llm"
)

// Config holds the full application configuration.
type Config struct {
	HTTP      HTTPConfig
	Redis     RedisConfig
	Providers []llm.ProviderConfig
	Persona   PersonaDefaults
	Worker    WorkerConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string
	Port int
}

// RedisConfig holds the KV backend's Redis connection settings.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

// WorkerConfig holds background-worker tunables.
type WorkerConfig struct {
	Enabled bool
}

// PersonaDefaults is the pet persona seed config loaded from yaml
// (spec.md §6's pet:config:* defaults).
type PersonaDefaults struct {
	Name          string `yaml:"name"`
	SystemPrompt  string `yaml:"system_prompt"`
	Personality   string `yaml:"personality"`
	Greeting      string `yaml:"greeting"`
	AvatarStyle   string `yaml:"avatar_style"`
	VoiceEnabled  bool   `yaml:"voice_enabled"`
}

// Load loads configuration from environment variables and the persona
// defaults yaml file.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Host: getEnvString("DESKPET_HTTP_HOST", "0.0.0.0"),
			Port: getEnvInt("DESKPET_HTTP_PORT", 8080),
		},
		Redis: RedisConfig{
			Addr:     getEnvString("DESKPET_REDIS_ADDR", "localhost:6379"),
			DB:       getEnvInt("DESKPET_REDIS_DB", 0),
			Password: getEnvString("DESKPET_REDIS_PASSWORD", ""),
		},
		Worker: WorkerConfig{
			Enabled: getEnvBool("DESKPET_WORKER_ENABLED", true),
		},
	}

	providers, err := loadProviders()
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	cfg.Providers = providers

	persona, err := loadPersonaDefaults(getEnvString("DESKPET_PERSONA_DEFAULTS_PATH", "config/defaults.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load persona defaults: %w", err)
	}
	cfg.Persona = persona

	return cfg, nil
}

// loadProviders reads DESKPET_PROVIDERS as a JSON array of provider
// configs if set, otherwise falls back to a single OpenAI-compatible
// provider built from DESKPET_OPENAI_API_KEY / DESKPET_OPENAI_BASE_URL /
// DESKPET_OPENAI_MODEL.
func loadProviders() ([]llm.ProviderConfig, error) {
	if raw := os.Getenv("DESKPET_PROVIDERS"); raw != "" {
		var providers []llm.ProviderConfig
		if err := json.Unmarshal([]byte(raw), &providers); err != nil {
			return nil, fmt.Errorf("parse DESKPET_PROVIDERS: %w", err)
		}
		return providers, nil
	}

	return []llm.ProviderConfig{
		{
			Name:     "primary",
			Kind:     llm.KindOpenAICompatibleSDK,
			Model:    getEnvString("DESKPET_OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:  getEnvString("DESKPET_OPENAI_BASE_URL", ""),
			APIKey:   getEnvString("DESKPET_OPENAI_API_KEY", ""),
			Priority: 0,
		},
	}, nil
}

func loadPersonaDefaults(path string) (PersonaDefaults, error) {
	defaults := PersonaDefaults{
		Name:         "Mochi",
		SystemPrompt: "You are a playful desktop companion pet who lives on the user's screen.",
		Personality:  "cheerful, curious, a little mischievous",
		Greeting:     "Hi, I missed you!",
		AvatarStyle:  "chibi",
		VoiceEnabled: false,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return PersonaDefaults{}, err
	}
	if err := yaml.Unmarshal(raw, &defaults); err != nil {
		return PersonaDefaults{}, err
	}
	return defaults, nil
}

// GetAddress returns the HTTP server address.
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
