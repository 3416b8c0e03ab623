package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MidamSri/Midams-Playground/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	url := "sqlite3://" + filepath.Join(t.TempDir(), "chat.db")
	require.NoError(t, Migrate(url))
	// migrations are idempotent
	require.NoError(t, Migrate(url))

	database, err := Open(url)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func newChat(t *testing.T, database *Database, owner string) *models.Chat {
	t.Helper()
	chat := &models.Chat{ID: uuid.NewString(), OwnerID: owner}
	require.NoError(t, database.CreateChat(context.Background(), chat))
	return chat
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		dialect dialect
		dsn     string
		wantErr bool
	}{
		{name: "sqlite relative", url: "sqlite3://midam.db", dialect: sqliteDialect, dsn: "midam.db?" + sqliteParams},
		{name: "sqlite with query", url: "sqlite3:///tmp/a.db?cache=shared", dialect: sqliteDialect, dsn: "/tmp/a.db?cache=shared&" + sqliteParams},
		{name: "postgres", url: "postgres://u:p@localhost:5432/chat?sslmode=disable", dialect: postgresDialect, dsn: "postgres://u:p@localhost:5432/chat?sslmode=disable"},
		{name: "postgresql scheme", url: "postgresql://localhost/chat", dialect: postgresDialect, dsn: "postgresql://localhost/chat"},
		{name: "sqlite without path", url: "sqlite3://", wantErr: true},
		{name: "mysql", url: "mysql://localhost/chat", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, dsn, err := parseURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, d)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestRebind(t *testing.T) {
	query := "UPDATE chats SET chat_name = ? WHERE chat_id = ?"
	assert.Equal(t, query, sqliteDialect.rebind(query))
	assert.Equal(t, "UPDATE chats SET chat_name = $1 WHERE chat_id = $2", postgresDialect.rebind(query))
}

func TestCreateAndGetChat(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	chat := newChat(t, database, "u1")
	assert.Equal(t, models.DefaultChatName, chat.Name)
	assert.False(t, chat.CreatedAt.IsZero())

	got, err := database.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, got.ID)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Equal(t, models.DefaultChatName, got.Name)
	assert.WithinDuration(t, chat.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = database.GetChat(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChatsNewestFirst(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		chat := &models.Chat{ID: uuid.NewString(), OwnerID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, database.CreateChat(ctx, chat))
		ids = append(ids, chat.ID)
	}
	newChat(t, database, "someone-else")

	chats, err := database.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{chats[0].ID, chats[1].ID, chats[2].ID})

	none, err := database.ListChats(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestRenameChat(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	chat := newChat(t, database, "u1")

	require.NoError(t, database.RenameChat(ctx, chat.ID, "Greetings and small talk"))
	got, err := database.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Greetings and small talk", got.Name)

	assert.ErrorIs(t, database.RenameChat(ctx, uuid.NewString(), "x"), ErrNotFound)
}

func TestAppendAndListTurns(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	chat := newChat(t, database, "u1")

	user := &models.Turn{ChatID: chat.ID, Role: models.RoleUser, Message: "Hello"}
	require.NoError(t, database.AppendTurn(ctx, user))
	assistant := &models.Turn{ChatID: chat.ID, Role: models.RoleAssistant, Message: ""}
	require.NoError(t, database.AppendTurn(ctx, assistant))

	assert.Positive(t, user.ID)
	assert.Greater(t, assistant.ID, user.ID)

	turns, err := database.ListTurns(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "Hello", turns[0].Message)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "", turns[1].Message)

	again, err := database.ListTurns(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, turns, again)
}

func TestListTurnsOrdersByTimestampThenID(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	chat := newChat(t, database, "u1")

	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	late := &models.Turn{ChatID: chat.ID, Role: models.RoleAssistant, Message: "late", Timestamp: at.Add(time.Second)}
	require.NoError(t, database.AppendTurn(ctx, late))
	first := &models.Turn{ChatID: chat.ID, Role: models.RoleUser, Message: "first", Timestamp: at}
	require.NoError(t, database.AppendTurn(ctx, first))
	second := &models.Turn{ChatID: chat.ID, Role: models.RoleAssistant, Message: "second", Timestamp: at}
	require.NoError(t, database.AppendTurn(ctx, second))

	turns, err := database.ListTurns(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, []string{"first", "second", "late"}, []string{turns[0].Message, turns[1].Message, turns[2].Message})
}

func TestAppendTurnRejectsUnknownChat(t *testing.T) {
	database := openTestDB(t)
	err := database.AppendTurn(context.Background(), &models.Turn{ChatID: uuid.NewString(), Role: models.RoleUser, Message: "hi"})
	assert.Error(t, err)
}

func TestAppendTurnRejectsInvalidRole(t *testing.T) {
	database := openTestDB(t)
	chat := newChat(t, database, "u1")
	err := database.AppendTurn(context.Background(), &models.Turn{ChatID: chat.ID, Message: "hi"})
	assert.Error(t, err)
}

func TestDeleteChatRemovesTurnsFirst(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	chat := newChat(t, database, "u1")
	require.NoError(t, database.AppendTurn(ctx, &models.Turn{ChatID: chat.ID, Role: models.RoleUser, Message: "Hello"}))

	require.NoError(t, database.DeleteChat(ctx, chat.ID))

	turns, err := database.ListTurns(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	chats, err := database.ListChats(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, chats)

	_, err = database.GetChat(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, database.DeleteChat(ctx, chat.ID))
}
