// Package deadletter keeps assistant turns that could not be written to the
// main database so they can be replayed once it is reachable again.
package deadletter

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/MidamSri/Midams-Playground/internal/db"
	"github.com/MidamSri/Midams-Playground/internal/models"
)

var pendingBucket = []byte("pending_turns")

// Entry is a queued turn together with the reason it was queued.
type Entry struct {
	Seq      uint64      `json:"-"`
	Turn     models.Turn `json:"turn"`
	Reason   string      `json:"reason"`
	FailedAt time.Time   `json:"failed_at"`
}

// Appender is the write side of the history store. GetChat tells a turn
// whose chat was deleted apart from a store that is still unreachable.
type Appender interface {
	AppendTurn(ctx context.Context, turn *models.Turn) error
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
}

type Store struct {
	db     *bolt.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the bolt file at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open dead letter store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pendingBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create dead letter bucket: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Push queues turn. reason is kept for operators reading the queue.
func (s *Store) Push(_ context.Context, turn models.Turn, reason error) error {
	entry := Entry{Turn: turn, FailedAt: s.now().UTC()}
	if reason != nil {
		entry.Reason = reason.Error()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), value)
	})
}

// Pending returns the queued entries, oldest first. Malformed entries are
// skipped.
func (s *Store) Pending() ([]Entry, error) {
	entries := make([]Entry, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				s.logger.Warn("skipping malformed dead letter", zap.Binary("key", k), zap.Error(err))
				return nil
			}
			entry.Seq = binary.BigEndian.Uint64(k)
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Replay appends every queued turn through appender, removing each one that
// was stored. Turns whose chat no longer exists are dropped; other failures
// stay queued. It returns how many turns were replayed.
func (s *Store) Replay(ctx context.Context, appender Appender) (int, error) {
	entries, err := s.Pending()
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		turn := entry.Turn
		turn.ID = 0
		if err := appender.AppendTurn(ctx, &turn); err != nil {
			if _, getErr := appender.GetChat(ctx, turn.ChatID); errors.Is(getErr, db.ErrNotFound) {
				s.logger.Warn("dropping dead letter of deleted chat",
					zap.Uint64("seq", entry.Seq),
					zap.String("chat_id", turn.ChatID),
					zap.Error(err))
				if err := s.delete(entry.Seq); err != nil {
					return replayed, fmt.Errorf("remove dead letter %d: %w", entry.Seq, err)
				}
				continue
			}
			s.logger.Warn("dead letter replay failed",
				zap.Uint64("seq", entry.Seq),
				zap.String("chat_id", turn.ChatID),
				zap.Error(err))
			continue
		}

		if err := s.delete(entry.Seq); err != nil {
			return replayed, fmt.Errorf("remove replayed dead letter %d: %w", entry.Seq, err)
		}
		replayed++
		s.logger.Info("replayed dead letter",
			zap.Uint64("seq", entry.Seq),
			zap.String("chat_id", turn.ChatID),
			zap.Int64("turn_id", turn.ID))
	}
	return replayed, nil
}

func (s *Store) delete(seq uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(seqKey(seq))
	})
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
