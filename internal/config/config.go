package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"relayBot/internal/ai_model"
)

const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendMemory = "memory"

	TransportMessenger = "messenger"
	TransportTelegram  = "telegram"
)

type Config struct {
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string
	Temperature       float32
	CompletionTimeout time.Duration
	SystemPrompt      string

	StoreBackend   string
	DbPath         string
	AtlasURI       string
	StoreNamespace string
	WindowSize     int

	Transport       string
	Port            int
	VerifyToken     string
	PageAccessToken string
	GraphAPIURL     string
	BotToken        string
	TelegramWorkers int

	LogLevel  string
	LogFormat string
}

// Error is a configuration problem that prevents startup.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func defaults(v *viper.Viper) {
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_TEMPERATURE", 0.7)
	v.SetDefault("COMPLETION_TIMEOUT", "60s")
	v.SetDefault("STORE_BACKEND", BackendSQLite)
	v.SetDefault("DB_PATH", "./data/relay.db")
	v.SetDefault("STORE_NAMESPACE", "relay")
	v.SetDefault("CONTEXT_WINDOW_SIZE", 10)
	v.SetDefault("TRANSPORT", TransportMessenger)
	v.SetDefault("PORT", 1337)
	v.SetDefault("TELEGRAM_WORKERS", 4)
	v.SetDefault("GRAPH_API_URL", "https://graph.facebook.com/v2.6")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {
	c := Config{
		OpenAIKey:         strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIBaseURL:     v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:       v.GetString("OPENAI_MODEL"),
		Temperature:       float32(v.GetFloat64("OPENAI_TEMPERATURE")),
		CompletionTimeout: v.GetDuration("COMPLETION_TIMEOUT"),
		SystemPrompt:      v.GetString("SYSTEM_PROMPT"),
		StoreBackend:      strings.ToLower(v.GetString("STORE_BACKEND")),
		DbPath:            v.GetString("DB_PATH"),
		AtlasURI:          v.GetString("ATLAS_URI"),
		StoreNamespace:    v.GetString("STORE_NAMESPACE"),
		WindowSize:        v.GetInt("CONTEXT_WINDOW_SIZE"),
		Transport:         strings.ToLower(v.GetString("TRANSPORT")),
		Port:              v.GetInt("PORT"),
		VerifyToken:       v.GetString("VERIFY_TOKEN"),
		PageAccessToken:   v.GetString("PAGE_ACCESS_TOKEN"),
		GraphAPIURL:       strings.TrimRight(v.GetString("GRAPH_API_URL"), "/"),
		BotToken:          v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramWorkers:   v.GetInt("TELEGRAM_WORKERS"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
	}

	if path := v.GetString("SYSTEM_PROMPT_FILE"); path != "" && c.SystemPrompt == "" {
		prompt, err := ai_model.ReadPromptFile(path)
		if err != nil {
			return c, &Error{Key: "SYSTEM_PROMPT_FILE", Reason: err.Error()}
		}
		c.SystemPrompt = prompt
	}

	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.OpenAIKey == "" {
		return &Error{Key: "OPENAI_API_KEY", Reason: "is required"}
	}
	if c.CompletionTimeout <= 0 {
		return &Error{Key: "COMPLETION_TIMEOUT", Reason: "must be a positive duration"}
	}
	if c.WindowSize <= 0 {
		return &Error{Key: "CONTEXT_WINDOW_SIZE", Reason: "must be a positive integer"}
	}

	switch c.StoreBackend {
	case BackendSQLite:
		if c.DbPath == "" {
			return &Error{Key: "DB_PATH", Reason: "is required for the sqlite store"}
		}
	case BackendMongo:
		if c.AtlasURI == "" {
			return &Error{Key: "ATLAS_URI", Reason: "is required for the mongo store"}
		}
		if c.StoreNamespace == "" {
			return &Error{Key: "STORE_NAMESPACE", Reason: "is required for the mongo store"}
		}
	case BackendMemory:
	default:
		return &Error{Key: "STORE_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.StoreBackend)}
	}

	switch c.Transport {
	case TransportMessenger:
		if c.VerifyToken == "" {
			return &Error{Key: "VERIFY_TOKEN", Reason: "is required for messenger"}
		}
		if c.PageAccessToken == "" {
			return &Error{Key: "PAGE_ACCESS_TOKEN", Reason: "is required for messenger"}
		}
		if c.Port <= 0 || c.Port > 65535 {
			return &Error{Key: "PORT", Reason: "must be a valid port"}
		}
	case TransportTelegram:
		if c.BotToken == "" {
			return &Error{Key: "TELEGRAM_BOT_TOKEN", Reason: "is required for telegram"}
		}
		if c.TelegramWorkers <= 0 {
			return &Error{Key: "TELEGRAM_WORKERS", Reason: "must be a positive integer"}
		}
	default:
		return &Error{Key: "TRANSPORT", Reason: fmt.Sprintf("unknown transport %q", c.Transport)}
	}
	return nil
}
