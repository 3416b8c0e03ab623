package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MidamSri/Midams-Playground/internal/db"
	"github.com/MidamSri/Midams-Playground/internal/llm"
	"github.com/MidamSri/Midams-Playground/internal/metrics"
	"github.com/MidamSri/Midams-Playground/internal/models"
)

const tracerName = "github.com/MidamSri/Midams-Playground/internal/chat"

type Config struct {
	DefaultModel string
	TitleModel   string

	GenerationTimeout time.Duration
	TitleTimeout      time.Duration

	// MaxContextTokens bounds the history sent with each turn. Zero disables
	// trimming.
	MaxContextTokens int

	FinalizeInitialInterval time.Duration
	FinalizeMaxElapsed      time.Duration
}

type Option func(*Orchestrator)

// WithDeadLetters sets where assistant turns go when they cannot be stored.
func WithDeadLetters(q DeadLetterQueue) Option {
	return func(o *Orchestrator) { o.deadLetters = q }
}

// WithTokenCounter enables history trimming to Config.MaxContextTokens.
func WithTokenCounter(c TokenCounter) Option {
	return func(o *Orchestrator) { o.tokens = c }
}

type Orchestrator struct {
	store       Store
	generator   Generator
	logger      *zap.Logger
	cfg         Config
	deadLetters DeadLetterQueue
	tokens      TokenCounter
	tracer      trace.Tracer
	now         func() time.Time

	mu      sync.Mutex
	closing bool
	// tasks counts in-flight turns and background title requests.
	tasks sync.WaitGroup
}

func NewOrchestrator(store Store, generator Generator, logger *zap.Logger, cfg Config, opts ...Option) *Orchestrator {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = 30 * time.Second
	}
	if cfg.FinalizeInitialInterval <= 0 {
		cfg.FinalizeInitialInterval = 200 * time.Millisecond
	}
	if cfg.FinalizeMaxElapsed <= 0 {
		cfg.FinalizeMaxElapsed = 30 * time.Second
	}

	o := &Orchestrator{
		store:     store,
		generator: generator,
		logger:    logger,
		cfg:       cfg,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type TurnRequest struct {
	ChatID string
	Text   string
	Model  string
}

// TurnResult describes how a turn ended.
type TurnResult struct {
	UserTurn      models.Turn
	AssistantTurn models.Turn
	Fragments     int

	// GenerationErr is the provider failure that ended the stream early, if any.
	GenerationErr error
	// Disconnected is set when the sink stopped accepting fragments.
	Disconnected bool
	// FinalizeErr is set when the reply could not be stored, even after retries.
	FinalizeErr error
	// TitleScheduled is set when a background title request was started.
	TitleScheduled bool
}

// Outcome summarizes the result for metrics.
func (r TurnResult) Outcome() string {
	switch {
	case r.FinalizeErr != nil:
		return metrics.OutcomeDeadLettered
	case r.GenerationErr != nil:
		return metrics.OutcomeGenerationError
	case r.Disconnected:
		return metrics.OutcomeDisconnected
	default:
		return metrics.OutcomeCompleted
	}
}

// HandleTurn serves one chat turn. It stores the user's text, streams the
// model's reply into sink and stores the reply as an assistant turn. Once the
// user turn is stored the assistant turn is stored on every path, including a
// failed history read, a generation error, a closed sink and a panic while
// relaying.
//
// A non-nil error means no reply was generated. When the error comes after the
// user turn was stored, an empty assistant turn closes the exchange.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest, sink Sink) (res TurnResult, err error) {
	if !o.begin() {
		return res, ErrShuttingDown
	}
	defer o.tasks.Done()

	start := time.Now()

	text := strings.TrimSpace(req.Text)
	if req.ChatID == "" {
		return res, fmt.Errorf("%w: chat_id is required", ErrValidation)
	}
	if text == "" {
		return res, fmt.Errorf("%w: text is required", ErrValidation)
	}
	if _, err := uuid.Parse(req.ChatID); err != nil {
		return res, fmt.Errorf("%w: %s", ErrChatNotFound, req.ChatID)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.cfg.DefaultModel
	}

	ctx, span := o.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("chat.id", req.ChatID),
		attribute.String("llm.model", model),
	))
	defer span.End()

	logger := o.logger.With(zap.String("chat_id", req.ChatID), zap.String("model", model))

	if _, err := o.store.GetChat(ctx, req.ChatID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return res, fmt.Errorf("%w: %s", ErrChatNotFound, req.ChatID)
		}
		span.RecordError(err)
		return res, fmt.Errorf("load chat: %w", err)
	}

	res.UserTurn = models.Turn{ChatID: req.ChatID, Role: models.RoleUser, Message: text}
	if err := o.store.AppendTurn(ctx, &res.UserTurn); err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("store user turn: %w", err)
	}

	var (
		reply          strings.Builder
		priorTurnCount int
		generated      bool
	)
	defer func() {
		res.AssistantTurn, res.FinalizeErr = o.finalize(ctx, req.ChatID, reply.String())

		if generated && res.FinalizeErr == nil && shouldNameChat(priorTurnCount) {
			res.TitleScheduled = true
			o.tasks.Add(1)
			go o.nameChat(context.WithoutCancel(ctx), req.ChatID, text, reply.String())
		}

		outcome := res.Outcome()
		if !generated && res.FinalizeErr == nil {
			outcome = metrics.OutcomeHistoryError
		}
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(
			attribute.String("chat.outcome", outcome),
			attribute.Int("chat.fragments", res.Fragments),
		)
		logger.Info("turn finished",
			zap.String("outcome", outcome),
			zap.Int("prior_turns", priorTurnCount),
			zap.Int("fragments", res.Fragments),
			zap.Int("reply_length", reply.Len()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	prior, err := o.priorTurns(ctx, res.UserTurn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history")
		return res, err
	}
	priorTurnCount = countExchanges(prior)
	history := o.buildContext(prior, text)
	generated = true

	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.GenerationTimeout)
	defer cancel()

	open := true
	for fragment, err := range o.generator.Stream(genCtx, history, text, model) {
		if err != nil {
			res.GenerationErr = err
			span.RecordError(err)
			logger.Warn("generation ended with error", zap.Error(err))
			break
		}
		if fragment == "" {
			continue
		}

		reply.WriteString(fragment)
		res.Fragments++
		metrics.FragmentsTotal.Inc()

		if !open {
			continue
		}
		if err := sink.Send(ctx, fragment); err != nil {
			open = false
			res.Disconnected = true
			logger.Debug("sink closed, draining generation", zap.Error(err))
		}
	}

	return res, nil
}

// begin registers an in-flight turn unless Shutdown has started.
func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing {
		return false
	}
	o.tasks.Add(1)
	return true
}

// Wait blocks until in-flight turns and background title requests have
// finished. It does not stop new turns; callers must not start turns while
// waiting.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// Shutdown refuses new turns with ErrShuttingDown and waits until in-flight
// turns have stored their replies and their title requests have finished.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.closing = true
	o.mu.Unlock()
	o.tasks.Wait()
}

// shouldNameChat reports whether the chat gets a generated title on this turn:
// exactly when one turn came before it, so the chat's first full exchange is
// on record.
func shouldNameChat(priorTurnCount int) bool {
	return priorTurnCount == 1
}

// countExchanges counts the turns a chat has served: user messages answered
// by a non-empty assistant reply. Each served turn stores a user and an
// assistant record, so counting raw records would never match on the second
// turn. Unanswered and empty-reply turns do not count.
func countExchanges(prior []models.Turn) int {
	n := 0
	pending := false
	for _, turn := range prior {
		switch turn.Role {
		case models.RoleUser:
			pending = true
		case models.RoleAssistant:
			if pending && turn.Message != "" {
				n++
			}
			pending = false
		}
	}
	return n
}

// priorTurns reads the chat's history and returns the turns stored before
// current.
func (o *Orchestrator) priorTurns(ctx context.Context, current models.Turn) ([]models.Turn, error) {
	turns, err := o.store.ListTurns(ctx, current.ChatID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("read history: chat %s has no turns after append", current.ChatID)
	}

	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].ID == current.ID {
			return turns[:i], nil
		}
	}
	return nil, fmt.Errorf("read history: turn %d missing from chat %s", current.ID, current.ChatID)
}

// finalize stores the assistant reply, retrying with exponential backoff.
// When retries run out the turn is handed to the dead letter queue.
func (o *Orchestrator) finalize(ctx context.Context, chatID, reply string) (models.Turn, error) {
	ctx, span := o.tracer.Start(context.WithoutCancel(ctx), "chat.finalize")
	defer span.End()

	turn := models.Turn{
		ChatID:    chatID,
		Role:      models.RoleAssistant,
		Message:   reply,
		Timestamp: o.now().UTC(),
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.cfg.FinalizeInitialInterval
	bo.MaxElapsedTime = o.cfg.FinalizeMaxElapsed

	attempt := 0
	operation := func() error {
		attempt++
		t := turn
		if err := o.store.AppendTurn(ctx, &t); err != nil {
			return err
		}
		turn = t
		return nil
	}
	notify := func(err error, wait time.Duration) {
		o.logger.Warn("store assistant turn failed, retrying",
			zap.String("chat_id", chatID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify)
	if err == nil {
		return turn, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "assistant turn not stored")
	metrics.FinalizeFailuresTotal.Inc()
	o.logger.Error("assistant turn not stored; reply was streamed but is missing from history",
		zap.String("chat_id", chatID),
		zap.Int("attempts", attempt),
		zap.Error(err),
	)

	if o.deadLetters == nil {
		return turn, fmt.Errorf("store assistant turn: %w", err)
	}
	if dlErr := o.deadLetters.Push(ctx, turn, err); dlErr != nil {
		o.logger.Error("dead letter push failed, reply lost",
			zap.String("chat_id", chatID),
			zap.String("reply", reply),
			zap.Error(dlErr),
		)
		return turn, fmt.Errorf("store assistant turn: %w", errors.Join(err, dlErr))
	}
	metrics.DeadLettersTotal.Inc()
	return turn, fmt.Errorf("store assistant turn (dead-lettered): %w", err)
}

// nameChat asks the model for a short title for the chat's first exchange and
// renames the chat. Failures are logged only.
func (o *Orchestrator) nameChat(ctx context.Context, chatID, userText, reply string) {
	defer o.tasks.Done()
	defer func() {
		if r := recover(); r != nil {
			metrics.TitlesTotal.WithLabelValues(metrics.TitleFailed).Inc()
			o.logger.Error("title generation panicked", zap.String("chat_id", chatID), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TitleTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "chat.title", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	logger := o.logger.With(zap.String("chat_id", chatID))

	raw, err := o.generator.Complete(ctx, llm.TitlePrompt(userText, reply), o.cfg.TitleModel)
	if err != nil {
		span.RecordError(err)
		metrics.TitlesTotal.WithLabelValues(metrics.TitleFailed).Inc()
		logger.Warn("title generation failed", zap.Error(err))
		return
	}

	title := llm.CleanTitle(raw)
	if title == "" {
		metrics.TitlesTotal.WithLabelValues(metrics.TitleEmpty).Inc()
		logger.Warn("title generation returned nothing", zap.String("raw", raw))
		return
	}

	if err := o.store.RenameChat(ctx, chatID, title); err != nil {
		span.RecordError(err)
		metrics.TitlesTotal.WithLabelValues(metrics.TitleFailed).Inc()
		logger.Warn("rename chat failed", zap.String("title", title), zap.Error(err))
		return
	}

	metrics.TitlesTotal.WithLabelValues(metrics.TitleRenamed).Inc()
	logger.Info("chat renamed", zap.String("title", title))
}
