// Package chat serves chat turns: it records the user's message, streams the
// model's reply to the caller and makes sure the reply is stored however the
// stream ends.
package chat

import (
	"context"
	"errors"
	"iter"

	"github.com/MidamSri/Midams-Playground/internal/llm"
	"github.com/MidamSri/Midams-Playground/internal/models"
)

var (
	// ErrValidation marks a request rejected before anything was stored.
	ErrValidation = errors.New("invalid request")
	// ErrChatNotFound is returned when a turn is sent to an unknown chat.
	ErrChatNotFound = errors.New("chat not found")
	// ErrShuttingDown is returned for turns sent after Shutdown started.
	ErrShuttingDown = errors.New("shutting down")
)

// HistoryStore is the append-only turn log.
type HistoryStore interface {
	AppendTurn(ctx context.Context, turn *models.Turn) error
	ListTurns(ctx context.Context, chatID string) ([]models.Turn, error)
}

// Registry maps chat IDs to their owner, name and creation time.
type Registry interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	ListChats(ctx context.Context, ownerID string) ([]models.Chat, error)
	RenameChat(ctx context.Context, chatID, name string) error
	DeleteChat(ctx context.Context, chatID string) error
}

type Store interface {
	HistoryStore
	Registry
}

// Generator produces model output. Stream yields fragments in generation
// order and reports a provider failure as its last element.
type Generator interface {
	Stream(ctx context.Context, history []llm.Message, message, model string) iter.Seq2[string, error]
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Sink receives reply fragments as they are produced. Once Send fails the
// sink is considered closed and receives nothing more.
type Sink interface {
	Send(ctx context.Context, fragment string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, fragment string) error

func (f SinkFunc) Send(ctx context.Context, fragment string) error {
	return f(ctx, fragment)
}

// DeadLetterQueue keeps assistant turns that could not be stored.
type DeadLetterQueue interface {
	Push(ctx context.Context, turn models.Turn, reason error) error
}

// TokenCounter estimates the size of a message in model tokens.
type TokenCounter interface {
	Count(text string) int
}
