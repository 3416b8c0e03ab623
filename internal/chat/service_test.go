package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MidamSri/Midams-Playground/internal/models"
)

func TestCreateChat(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, zaptest.NewLogger(t))

	chat, err := svc.CreateChat(context.Background(), " u1 ")
	require.NoError(t, err)

	_, err = uuid.Parse(chat.ID)
	assert.NoError(t, err)
	assert.Equal(t, "u1", chat.OwnerID)
	assert.Equal(t, models.DefaultChatName, chat.Name)

	other, err := svc.CreateChat(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEqual(t, chat.ID, other.ID)
}

func TestCreateChatRequiresOwner(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, zaptest.NewLogger(t))

	_, err := svc.CreateChat(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, store.chats)
}

func TestHistory(t *testing.T) {
	h := newHarness(t, &fakeGenerator{fragments: []string{"Hi"}})
	svc := NewService(h.store, zaptest.NewLogger(t))
	h.turn(t, "Hello")

	first, err := svc.History(context.Background(), h.chatID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultChatName, first.ChatName)
	require.Len(t, first.Turns, 2)
	assert.Equal(t, "Hello", first.Turns[0].Message)
	assert.Equal(t, "Hi", first.Turns[1].Message)

	second, err := svc.History(context.Background(), h.chatID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHistoryFallsBackForUnknownChat(t *testing.T) {
	svc := NewService(newMemoryStore(), zaptest.NewLogger(t))

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		history, err := svc.History(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.FallbackChatName, history.ChatName)
		assert.NotNil(t, history.Turns)
		assert.Empty(t, history.Turns)
	}
}

func TestListChats(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	older, err := svc.CreateChat(ctx, "u1")
	require.NoError(t, err)
	newer, err := svc.CreateChat(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.CreateChat(ctx, "u2")
	require.NoError(t, err)

	chats, err := svc.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer.ID, chats[0].ID)
	assert.Equal(t, older.ID, chats[1].ID)

	none, err := svc.ListChats(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDeleteChat(t *testing.T) {
	h := newHarness(t, &fakeGenerator{fragments: []string{"Hi"}})
	svc := NewService(h.store, zaptest.NewLogger(t))
	ctx := context.Background()
	h.turn(t, "Hello")

	require.NoError(t, svc.DeleteChat(ctx, h.chatID))

	history, err := svc.History(ctx, h.chatID)
	require.NoError(t, err)
	assert.Empty(t, history.Turns)
	assert.Equal(t, models.FallbackChatName, history.ChatName)

	chats, err := svc.ListChats(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, chats)

	assert.NoError(t, svc.DeleteChat(ctx, h.chatID))
	assert.NoError(t, svc.DeleteChat(ctx, "not-a-uuid"))
	assert.ErrorIs(t, svc.DeleteChat(ctx, ""), ErrValidation)
}
