package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// localToken is sent to OpenAI-compatible servers that do not check keys.
const localToken = "local"

type ProviderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// NewModel builds the langchaingo model for cfg.Provider. The model named in
// cfg is only a default; callers pick the model per request.
func NewModel(ctx context.Context, cfg ProviderConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderGoogleAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("googleai: api key must be provided")
		}
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("googleai: %w", err)
		}
		return model, nil

	case ProviderOpenAI:
		token := cfg.APIKey
		if token == "" && cfg.BaseURL != "" {
			token = localToken
		}
		opts := []openai.Option{
			openai.WithToken(token),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
