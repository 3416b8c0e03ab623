package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MidamSri/Midams-Playground/internal/api"
	"github.com/MidamSri/Midams-Playground/internal/chat"
	"github.com/MidamSri/Midams-Playground/internal/config"
	"github.com/MidamSri/Midams-Playground/internal/db"
	"github.com/MidamSri/Midams-Playground/internal/deadletter"
	"github.com/MidamSri/Midams-Playground/internal/llm"
	"github.com/MidamSri/Midams-Playground/internal/logger"
	"github.com/MidamSri/Midams-Playground/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
	}, log)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		log.Info("database migrated")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := database.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	deadLetters, err := deadletter.Open(cfg.DeadLetterPath, log.Named("deadletter"))
	if err != nil {
		return err
	}
	defer deadLetters.Close()

	replayed, err := deadLetters.Replay(ctx, database)
	if err != nil {
		log.Error("failed to replay dead letters", zap.Error(err))
	} else if replayed > 0 {
		log.Info("replayed dead-lettered turns", zap.Int("count", replayed))
	}

	model, err := llm.NewModel(ctx, llm.ProviderConfig{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Model:    cfg.DefaultModel,
	})
	if err != nil {
		return fmt.Errorf("initialize %s model: %w", cfg.LLMProvider, err)
	}
	generator := llm.New(model, cfg.DefaultModel, log.Named("llm"))

	opts := []chat.Option{chat.WithDeadLetters(deadLetters)}
	if cfg.MaxContextTokens > 0 {
		tokenizer, err := llm.NewTokenizer(llm.DefaultEncoding)
		if err != nil {
			return err
		}
		opts = append(opts, chat.WithTokenCounter(tokenizer))
	}

	orchestrator := chat.NewOrchestrator(database, generator, log.Named("chat"), chat.Config{
		DefaultModel:            cfg.DefaultModel,
		TitleModel:              cfg.TitleModel,
		GenerationTimeout:       cfg.GenerationTimeout,
		TitleTimeout:            cfg.TitleTimeout,
		MaxContextTokens:        cfg.MaxContextTokens,
		FinalizeInitialInterval: cfg.FinalizeInitialInterval,
		FinalizeMaxElapsed:      cfg.FinalizeMaxElapsed,
	}, opts...)
	chats := chat.NewService(database, log.Named("chat"))

	handler := api.NewHandler(chats, orchestrator, database, log.Named("api"))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, log.Named("http"), cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("provider", cfg.LLMProvider),
			zap.String("model", cfg.DefaultModel),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Handlers can outlive server.Shutdown's deadline. Their replies must be
	// stored before the database and dead letter store close below.
	log.Info("waiting for in-flight turns")
	orchestrator.Shutdown()
	log.Info("server stopped")
	return err
}
