package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/MidamSri/Midams-Playground/internal/models"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// Message is one prior turn handed to the model as context.
type Message struct {
	Role    models.Role
	Content string
}

// Service adapts a langchaingo model to the streaming and one-shot calls the
// chat orchestrator needs.
type Service struct {
	llm          llms.Model
	defaultModel string
	logger       *zap.Logger
}

func New(model llms.Model, defaultModel string, logger *zap.Logger) *Service {
	return &Service{llm: model, defaultModel: defaultModel, logger: logger}
}

// Stream sends history followed by message and yields the reply fragments in
// generation order. A provider failure is yielded once, as the last element.
// Stopping the iteration early cancels the provider call and waits for it to
// return.
func (s *Service) Stream(ctx context.Context, history []Message, message, model string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		fragments := make(chan string)
		done := make(chan error, 1)

		go func() {
			defer close(fragments)
			_, err := s.llm.GenerateContent(ctx, toMessageContent(history, message),
				llms.WithModel(s.model(model)),
				llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
					if err := ctx.Err(); err != nil {
						return err
					}
					select {
					case fragments <- string(chunk):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}),
			)
			done <- err
		}()

		for fragment := range fragments {
			if !yield(fragment, nil) {
				cancel()
				for range fragments {
				}
				return
			}
		}

		if err := <-done; err != nil {
			s.logger.Warn("generation stream failed", zap.String("model", s.model(model)), zap.Error(err))
			yield("", fmt.Errorf("generate content: %w", err))
		}
	}
}

// Complete runs a single non-streaming prompt.
func (s *Service) Complete(ctx context.Context, prompt, model string) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, llms.WithModel(s.model(model)))
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	return completion, nil
}

func (s *Service) model(model string) string {
	if strings.TrimSpace(model) == "" {
		return s.defaultModel
	}
	return model
}

// toMessageContent maps prior turns to provider roles. Empty turns are left
// out because providers reject messages without parts.
func toMessageContent(history []Message, message string) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(history)+1)
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}
	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, message))
}

func messageType(role models.Role) llms.ChatMessageType {
	if role == models.RoleAssistant {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}
