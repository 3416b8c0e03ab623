package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MidamSri/Midams-Playground/internal/models"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a chat does not exist.
var ErrNotFound = errors.New("not found")

type Database struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to the database named by databaseURL. Supported schemes are
// sqlite3:// and postgres://. Every method runs as its own short unit of
// work; no transaction outlives a single call.
func Open(databaseURL string) (*Database, error) {
	d, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}

	return &Database{db: db, dialect: d, now: time.Now}, nil
}

// ValidateURL reports whether databaseURL names a supported database.
func ValidateURL(databaseURL string) error {
	_, _, err := parseURL(databaseURL)
	return err
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *Database) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = db.now().UTC()
	}
	if chat.Name == "" {
		chat.Name = models.DefaultChatName
	}

	query := db.dialect.rebind(`
        INSERT INTO chats (chat_id, user_id, chat_name, created_at)
        VALUES (?, ?, ?, ?)`)

	if _, err := db.db.ExecContext(ctx, query, chat.ID, chat.OwnerID, chat.Name, chat.CreatedAt); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (db *Database) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	query := db.dialect.rebind(`
        SELECT chat_id, user_id, COALESCE(chat_name, ?), created_at
        FROM chats
        WHERE chat_id = ?`)

	var chat models.Chat
	err := db.db.QueryRowContext(ctx, query, models.DefaultChatName, chatID).
		Scan(&chat.ID, &chat.OwnerID, &chat.Name, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select chat: %w", err)
	}
	return &chat, nil
}

// ListChats returns the chats owned by ownerID, newest first.
func (db *Database) ListChats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	query := db.dialect.rebind(`
        SELECT chat_id, user_id, COALESCE(chat_name, ?), created_at
        FROM chats
        WHERE user_id = ?
        ORDER BY created_at DESC`)

	rows, err := db.db.QueryContext(ctx, query, models.DefaultChatName, ownerID)
	if err != nil {
		return []models.Chat{}, fmt.Errorf("select chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.OwnerID, &chat.Name, &chat.CreatedAt); err != nil {
			return []models.Chat{}, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return []models.Chat{}, err
	}
	return chats, nil
}

func (db *Database) RenameChat(ctx context.Context, chatID, name string) error {
	res, err := db.db.ExecContext(ctx, db.dialect.rebind("UPDATE chats SET chat_name = ? WHERE chat_id = ?"), name, chatID)
	if err != nil {
		return fmt.Errorf("update chat name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes the chat's messages and then the chat itself in one
// transaction. Deleting an unknown chat is not an error.
func (db *Database) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.dialect.rebind("DELETE FROM messages WHERE chat_id = ?"), chatID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	if _, err := tx.ExecContext(ctx, db.dialect.rebind("DELETE FROM chats WHERE chat_id = ?"), chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	return tx.Commit()
}

// AppendTurn inserts turn and fills in its ID. A zero Timestamp is assigned
// the current time; a non-zero one is kept so replayed turns keep their place.
func (db *Database) AppendTurn(ctx context.Context, turn *models.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("append turn: invalid role %d", turn.Role)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = db.now().UTC()
	}

	query := db.dialect.rebind(`
        INSERT INTO messages (chat_id, sender, message, timestamp)
        VALUES (?, ?, ?, ?)
        RETURNING id`)

	if err := db.db.QueryRowContext(ctx, query, turn.ChatID, turn.Role.String(), turn.Message, turn.Timestamp).Scan(&turn.ID); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListTurns returns every turn of chatID in conversation order.
func (db *Database) ListTurns(ctx context.Context, chatID string) ([]models.Turn, error) {
	query := db.dialect.rebind(`
        SELECT id, chat_id, sender, message, timestamp
        FROM messages
        WHERE chat_id = ?
        ORDER BY timestamp ASC, id ASC`)

	rows, err := db.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return []models.Turn{}, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var (
			turn   models.Turn
			sender string
		)
		if err := rows.Scan(&turn.ID, &turn.ChatID, &sender, &turn.Message, &turn.Timestamp); err != nil {
			return []models.Turn{}, fmt.Errorf("scan message: %w", err)
		}
		if turn.Role, err = models.ParseRole(sender); err != nil {
			return []models.Turn{}, fmt.Errorf("message %d: %w", turn.ID, err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return []models.Turn{}, err
	}
	return turns, nil
}
