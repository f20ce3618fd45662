package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Server    ServerConfig    `json:"server"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Store     StoreConfig     `json:"store"`
	Dedup     DedupConfig     `json:"dedup"`
	Checkin   CheckinConfig   `json:"checkin"`
	mu        sync.RWMutex
}

type AgentConfig struct {
	Provider            string  `json:"provider" env:"DIETBUDDY_AGENT_PROVIDER"`
	Model               string  `json:"model" env:"DIETBUDDY_AGENT_MODEL"`
	MaxTokens           int     `json:"max_tokens" env:"DIETBUDDY_AGENT_MAX_TOKENS"`
	Temperature         float64 `json:"temperature" env:"DIETBUDDY_AGENT_TEMPERATURE"`
	ContextWindow       int     `json:"context_window" env:"DIETBUDDY_AGENT_CONTEXT_WINDOW"`
	MaxContextChars     int     `json:"max_context_chars" env:"DIETBUDDY_AGENT_MAX_CONTEXT_CHARS"`
	ModelTimeoutSeconds int     `json:"model_timeout_seconds" env:"DIETBUDDY_AGENT_MODEL_TIMEOUT_SECONDS"`
	SystemPrompt        string  `json:"system_prompt,omitempty" env:"DIETBUDDY_AGENT_SYSTEM_PROMPT"`
	FallbackReply       string  `json:"fallback_reply" env:"DIETBUDDY_AGENT_FALLBACK_REPLY"`
	Timezone            string  `json:"timezone" env:"DIETBUDDY_AGENT_TIMEZONE"`
}

type ServerConfig struct {
	Host       string `json:"host" env:"DIETBUDDY_SERVER_HOST"`
	Port       int    `json:"port" env:"DIETBUDDY_SERVER_PORT"`
	AdminToken string `json:"admin_token,omitempty" env:"DIETBUDDY_SERVER_ADMIN_TOKEN"`
}

type WhatsAppConfig struct {
	Enabled          bool   `json:"enabled" env:"DIETBUDDY_WHATSAPP_ENABLED"`
	VerifyToken      string `json:"verify_token" env:"DIETBUDDY_WHATSAPP_VERIFY_TOKEN"`
	AccessToken      string `json:"access_token" env:"DIETBUDDY_WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID    string `json:"phone_number_id" env:"DIETBUDDY_WHATSAPP_PHONE_NUMBER_ID"`
	APIBase          string `json:"api_base" env:"DIETBUDDY_WHATSAPP_API_BASE"`
	ReplyWindowHours int    `json:"reply_window_hours" env:"DIETBUDDY_WHATSAPP_REPLY_WINDOW_HOURS"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"DIETBUDDY_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"DIETBUDDY_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"DIETBUDDY_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ProvidersConfig struct {
	OpenRouter ProviderConfig       `json:"openrouter"`
	OpenAI     OpenAIProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"DIETBUDDY_PROVIDERS_OPENROUTER_API_KEY"`
	APIBase string `json:"api_base" env:"DIETBUDDY_PROVIDERS_OPENROUTER_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"DIETBUDDY_PROVIDERS_OPENROUTER_PROXY"`
}

type OpenAIProviderConfig struct {
	APIKey     string `json:"api_key" env:"DIETBUDDY_PROVIDERS_OPENAI_API_KEY"`
	APIKeyFile string `json:"api_key_file,omitempty" env:"DIETBUDDY_PROVIDERS_OPENAI_API_KEY_FILE"`
	APIBase    string `json:"api_base" env:"DIETBUDDY_PROVIDERS_OPENAI_API_BASE"`
	Proxy      string `json:"proxy,omitempty" env:"DIETBUDDY_PROVIDERS_OPENAI_PROXY"`
}

type StoreConfig struct {
	Path string `json:"path" env:"DIETBUDDY_STORE_PATH"`
}

type DedupConfig struct {
	RetentionHours       int `json:"retention_hours" env:"DIETBUDDY_DEDUP_RETENTION_HOURS"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes" env:"DIETBUDDY_DEDUP_SWEEP_INTERVAL_MINUTES"`
}

type CheckinConfig struct {
	Enabled  bool   `json:"enabled" env:"DIETBUDDY_CHECKIN_ENABLED"`
	Schedule string `json:"schedule" env:"DIETBUDDY_CHECKIN_SCHEDULE"`
	Message  string `json:"message" env:"DIETBUDDY_CHECKIN_MESSAGE"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Provider:            "openrouter",
			Model:               "openai/gpt-4o-mini",
			MaxTokens:           1024,
			Temperature:         0.6,
			ContextWindow:       15,
			MaxContextChars:     16000,
			ModelTimeoutSeconds: 30,
			SystemPrompt:        "",
			FallbackReply:       "Ek second, thoda issue ho gaya 🙈 Please try again?",
			Timezone:            "Asia/Kolkata",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		WhatsApp: WhatsAppConfig{
			Enabled:          true,
			VerifyToken:      "",
			AccessToken:      "",
			PhoneNumberID:    "",
			APIBase:          "https://graph.facebook.com/v21.0",
			ReplyWindowHours: 24,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled:   false,
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Providers: ProvidersConfig{
			OpenRouter: ProviderConfig{},
			OpenAI:     OpenAIProviderConfig{},
		},
		Store: StoreConfig{
			Path: "~/.dietbuddy/dietbuddy.db",
		},
		Dedup: DedupConfig{
			RetentionHours:       24,
			SweepIntervalMinutes: 60,
		},
		Checkin: CheckinConfig{
			Enabled:  false,
			Schedule: "0 9 * * *",
			Message:  "Good morning! ☀️ Quick check-in: what did you have for breakfast, and how much water so far?",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// StorePath returns the SQLite path with ~ expanded.
func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Store.Path)
}

// ContextWindow returns the prompt window size, floored at 1.
func (c *Config) ContextWindow() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Agent.ContextWindow < 1 {
		return 15
	}
	return c.Agent.ContextWindow
}

// ModelTimeout bounds a single inference call.
func (c *Config) ModelTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Agent.ModelTimeoutSeconds < 1 {
		return 30 * time.Second
	}
	return time.Duration(c.Agent.ModelTimeoutSeconds) * time.Second
}

// DedupRetention returns how long processed event ids are remembered.
// The floor is the WhatsApp redelivery horizon.
func (c *Config) DedupRetention() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Dedup.RetentionHours < 24 {
		return 24 * time.Hour
	}
	return time.Duration(c.Dedup.RetentionHours) * time.Hour
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	c.mu.RLock()
	tz := c.Agent.Timezone
	c.mu.RUnlock()
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
