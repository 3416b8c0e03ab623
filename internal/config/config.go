package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/MidamSri/Midams-Playground/internal/db"
	"github.com/MidamSri/Midams-Playground/internal/llm"
)

// Config holds all environment backed configuration for the chat server.
type Config struct {
	// HTTP
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Storage
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"sqlite3://midam.db"`
	AutoMigrate    bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	DeadLetterPath string `env:"DEAD_LETTER_PATH" envDefault:"deadletter.bolt"`

	// Model provider
	LLMProvider  string `env:"LLM_PROVIDER" envDefault:"googleai"`
	LLMAPIKey    string `env:"GENAI_API_KEY"`
	LLMBaseURL   string `env:"LLM_BASE_URL"`
	DefaultModel string `env:"DEFAULT_MODEL" envDefault:"gemini-2.5-flash"`
	TitleModel   string `env:"TITLE_MODEL"`

	// Turn handling
	GenerationTimeout       time.Duration `env:"GENERATION_TIMEOUT" envDefault:"2m"`
	TitleTimeout            time.Duration `env:"TITLE_TIMEOUT" envDefault:"30s"`
	MaxContextTokens        int           `env:"MAX_CONTEXT_TOKENS" envDefault:"0"`
	FinalizeInitialInterval time.Duration `env:"FINALIZE_INITIAL_INTERVAL" envDefault:"200ms"`
	FinalizeMaxElapsed      time.Duration `env:"FINALIZE_MAX_ELAPSED" envDefault:"30s"`

	// Observability / Logging
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"midam-chat"`
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads .env files, if present, and parses the environment into Config.
// Variables already set in the environment win over .env values.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if strings.TrimSpace(cfg.TitleModel) == "" {
		cfg.TitleModel = cfg.DefaultModel
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case llm.ProviderGoogleAI, llm.ProviderOpenAI:
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q", c.LLMProvider)
	}

	if err := db.ValidateURL(c.DatabaseURL); err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	if strings.TrimSpace(c.DefaultModel) == "" {
		return errors.New("DEFAULT_MODEL must not be empty")
	}

	durations := map[string]time.Duration{
		"GENERATION_TIMEOUT":        c.GenerationTimeout,
		"TITLE_TIMEOUT":             c.TitleTimeout,
		"FINALIZE_INITIAL_INTERVAL": c.FinalizeInitialInterval,
		"FINALIZE_MAX_ELAPSED":      c.FinalizeMaxElapsed,
		"SHUTDOWN_TIMEOUT":          c.ShutdownTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.MaxContextTokens < 0 {
		return fmt.Errorf("MAX_CONTEXT_TOKENS must not be negative, got %d", c.MaxContextTokens)
	}
	return nil
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
