package chat

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/MidamSri/Midams-Playground/internal/db"
	"github.com/MidamSri/Midams-Playground/internal/llm"
	"github.com/MidamSri/Midams-Playground/internal/models"
)

var errStoreDown = errors.New("store down")

// memoryStore is an in-memory Store. appendErr and listErr, when set, are
// consulted before every append and history read.
type memoryStore struct {
	mu        sync.Mutex
	chats     map[string]models.Chat
	turns     []models.Turn
	nextID    int64
	clock     time.Time
	appendErr func(turn models.Turn) error
	listErr   func() error
	renames   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		chats: make(map[string]models.Chat),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memoryStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memoryStore) CreateChat(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = s.tick()
	}
	if chat.Name == "" {
		chat.Name = models.DefaultChatName
	}
	s.chats[chat.ID] = *chat
	return nil
}

func (s *memoryStore) GetChat(_ context.Context, chatID string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &chat, nil
}

func (s *memoryStore) ListChats(_ context.Context, ownerID string) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chats := make([]models.Chat, 0)
	for _, chat := range s.chats {
		if chat.OwnerID == ownerID {
			chats = append(chats, chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].CreatedAt.After(chats[j].CreatedAt) })
	return chats, nil
}

func (s *memoryStore) RenameChat(_ context.Context, chatID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return db.ErrNotFound
	}
	chat.Name = name
	s.chats[chatID] = chat
	s.renames++
	return nil
}

func (s *memoryStore) DeleteChat(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.turns[:0]
	for _, turn := range s.turns {
		if turn.ChatID != chatID {
			kept = append(kept, turn)
		}
	}
	s.turns = kept
	delete(s.chats, chatID)
	return nil
}

func (s *memoryStore) AppendTurn(_ context.Context, turn *models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		if err := s.appendErr(*turn); err != nil {
			return err
		}
	}
	if _, ok := s.chats[turn.ChatID]; !ok {
		return errors.New("foreign key constraint failed")
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.tick()
	}
	s.nextID++
	turn.ID = s.nextID
	s.turns = append(s.turns, *turn)
	return nil
}

func (s *memoryStore) ListTurns(_ context.Context, chatID string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		if err := s.listErr(); err != nil {
			return nil, err
		}
	}
	turns := make([]models.Turn, 0)
	for _, turn := range s.turns {
		if turn.ChatID == chatID {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}

func (s *memoryStore) turnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *memoryStore) chatName(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[chatID].Name
}

// fakeGenerator replays fragments and records what it was asked.
type fakeGenerator struct {
	fragments []string
	err       error
	title     string
	titleErr  error
	// started is closed when a stream begins; the stream then waits for
	// release before yielding.
	started chan struct{}
	release chan struct{}

	mu          sync.Mutex
	histories   [][]llm.Message
	messages    []string
	models      []string
	prompts     []string
	titleModels []string
	streamErr   error
}

func (g *fakeGenerator) Stream(ctx context.Context, history []llm.Message, message, model string) iter.Seq2[string, error] {
	g.mu.Lock()
	g.histories = append(g.histories, append([]llm.Message(nil), history...))
	g.messages = append(g.messages, message)
	g.models = append(g.models, model)
	g.mu.Unlock()

	return func(yield func(string, error) bool) {
		if g.started != nil {
			close(g.started)
		}
		if g.release != nil {
			<-g.release
		}
		for _, fragment := range g.fragments {
			if err := ctx.Err(); err != nil {
				g.mu.Lock()
				g.streamErr = err
				g.mu.Unlock()
				yield("", err)
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

func (g *fakeGenerator) Complete(_ context.Context, prompt, model string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.titleModels = append(g.titleModels, model)
	if g.titleErr != nil {
		return "", g.titleErr
	}
	return g.title, nil
}

func (g *fakeGenerator) titleCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// collectingSink records fragments. It fails every Send after failAfter
// fragments when failAfter is positive.
type collectingSink struct {
	fragments []string
	failAfter int
	onSend    func()
}

func (s *collectingSink) Send(_ context.Context, fragment string) error {
	if s.onSend != nil {
		s.onSend()
	}
	if s.failAfter > 0 && len(s.fragments) >= s.failAfter {
		return errors.New("broken pipe")
	}
	s.fragments = append(s.fragments, fragment)
	return nil
}

type memoryDeadLetters struct {
	turns   []models.Turn
	reasons []error
	err     error
}

func (q *memoryDeadLetters) Push(_ context.Context, turn models.Turn, reason error) error {
	if q.err != nil {
		return q.err
	}
	q.turns = append(q.turns, turn)
	q.reasons = append(q.reasons, reason)
	return nil
}

// wordCounter counts whitespace separated words as tokens.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
