package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MidamSri/Midams-Playground/internal/db"
	"github.com/MidamSri/Midams-Playground/internal/models"
)

// Service covers the plain chat operations around a turn: create, list, read
// history and delete.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateChat allocates a new chat for ownerID with the default name.
func (s *Service) CreateChat(ctx context.Context, ownerID string) (*models.Chat, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}

	chat := &models.Chat{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Name:    models.DefaultChatName,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	s.logger.Info("chat created", zap.String("chat_id", chat.ID), zap.String("user_id", ownerID))
	return chat, nil
}

// History returns the chat's name and turns. An unknown chat yields the
// fallback name and no turns.
func (s *Service) History(ctx context.Context, chatID string) (*models.History, error) {
	fallback := &models.History{ChatName: models.FallbackChatName, Turns: []models.Turn{}}
	if _, err := uuid.Parse(chatID); err != nil {
		return fallback, nil
	}

	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, db.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}

	turns, err := s.store.ListTurns(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return &models.History{ChatName: chat.Name, Turns: turns}, nil
}

// ListChats returns ownerID's chats, newest first.
func (s *Service) ListChats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	chats, err := s.store.ListChats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes the chat and its turns. Deleting an unknown chat succeeds.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("%w: chat_id is required", ErrValidation)
	}
	if _, err := uuid.Parse(chatID); err != nil {
		return nil
	}
	if err := s.store.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	s.logger.Info("chat deleted", zap.String("chat_id", chatID))
	return nil
}
