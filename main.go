package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"relayBot/internal/ai_model/openai"
	internalbot "relayBot/internal/bot"
	"relayBot/internal/config"
	"relayBot/internal/conversation"
	"relayBot/internal/db/sqlite"
	"relayBot/internal/db/turn"
	"relayBot/internal/db/turn/memory"
	turnmongo "relayBot/internal/db/turn/mongo"
	turnsqlite "relayBot/internal/db/turn/sqlite"
	"relayBot/internal/logger"
	"relayBot/internal/messenger"
)

const (
	connectTimeout = 30 * time.Second
	// replyGrace covers the store writes and delivery after a completion.
	replyGrace = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("[main] exiting")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	repository, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func(repository turn.Repository) {
		if err := repository.Close(); err != nil {
			log.Warn().Err(err).Msg("[main] closing store")
		}
	}(repository)

	model := openai.NewModel(openai.Options{
		APIKey:      cfg.OpenAIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.Temperature,
	}, log)

	orchestrator := conversation.New(repository, model, conversation.Options{
		WindowSize:   cfg.WindowSize,
		Timeout:      cfg.CompletionTimeout,
		SystemPrompt: cfg.SystemPrompt,
	}, log)

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("transport", cfg.Transport).
		Int("window", cfg.WindowSize).
		Msg("[main] starting")

	switch cfg.Transport {
	case config.TransportTelegram:
		b, err := internalbot.New(cfg.BotToken, orchestrator, internalbot.Options{
			Workers:      cfg.TelegramWorkers,
			ReplyTimeout: cfg.CompletionTimeout + replyGrace,
		}, log)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		b.Start(ctx)
		return nil
	default:
		client := messenger.NewClient(cfg.GraphAPIURL, cfg.PageAccessToken, nil, log)
		server := messenger.NewServer(orchestrator, client, cfg.VerifyToken, log,
			messenger.WithEventTimeout(cfg.CompletionTimeout+replyGrace))
		return server.Run(ctx, fmt.Sprintf(":%d", cfg.Port))
	}
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (turn.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendMongo:
		log.Info().Msg("[main] connecting to database...")
		r, err := turnmongo.Connect(ctx, cfg.AtlasURI, cfg.StoreNamespace, log)
		if err != nil {
			return nil, fmt.Errorf("mongo store: %w", err)
		}
		log.Info().Msg("[main] connected successfully to database")
		return r, nil
	case config.BackendMemory:
		log.Warn().Msg("[main] using in-memory store, history is lost on restart")
		return memory.NewRepository(log), nil
	default:
		db, err := sqlite.Open(ctx, cfg.DbPath, log)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		return turnsqlite.NewRepositorySQlite(db, log), nil
	}
}
