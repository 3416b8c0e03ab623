package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MidamSri/Midams-Playground/internal/config"
	"github.com/MidamSri/Midams-Playground/internal/llm"
)

// Sends a single prompt through the configured provider and prints the reply.
// Useful for checking credentials before starting the server:
//
//	go run . "Say hello"
func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	prompt := "What would be a good name for a chat about colorful socks?"
	if len(os.Args) > 1 {
		prompt = strings.Join(os.Args[1:], " ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout)
	defer cancel()

	model, err := llm.NewModel(ctx, llm.ProviderConfig{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Model:    cfg.DefaultModel,
	})
	if err != nil {
		logger.Fatal("failed to initialize model", zap.String("provider", cfg.LLMProvider), zap.Error(err))
	}

	start := time.Now()
	completion, err := llm.New(model, cfg.DefaultModel, logger).Complete(ctx, prompt, "")
	if err != nil {
		logger.Fatal("failed to generate completion", zap.Error(err))
	}
	logger.Info("completion received", zap.String("model", cfg.DefaultModel), zap.Duration("duration", time.Since(start)))
	fmt.Println(completion)
}
