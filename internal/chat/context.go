package chat

import (
	"go.uber.org/zap"

	"github.com/MidamSri/Midams-Playground/internal/llm"
	"github.com/MidamSri/Midams-Playground/internal/models"
)

// Every chat message costs a few tokens of framing on top of its content.
const tokensPerMessage = 4

// buildContext maps prior turns to model messages, oldest first. With a token
// counter and a budget configured, the oldest turns are dropped until the rest
// fit alongside the new message.
func (o *Orchestrator) buildContext(prior []models.Turn, message string) []llm.Message {
	history := make([]llm.Message, 0, len(prior))
	for _, turn := range prior {
		history = append(history, llm.Message{Role: turn.Role, Content: turn.Message})
	}

	if o.tokens == nil || o.cfg.MaxContextTokens <= 0 {
		return history
	}

	budget := o.cfg.MaxContextTokens - o.messageTokens(message)
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := o.messageTokens(history[i].Content)
		if used+n > budget {
			break
		}
		used += n
		start = i
	}

	if start > 0 {
		o.logger.Debug("trimmed conversation context",
			zap.Int("dropped_turns", start),
			zap.Int("kept_turns", len(history)-start),
			zap.Int("tokens", used),
		)
	}
	return history[start:]
}

func (o *Orchestrator) messageTokens(text string) int {
	return o.tokens.Count(text) + tokensPerMessage
}
