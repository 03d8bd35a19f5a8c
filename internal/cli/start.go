package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-bot/internal/app"
	"quiz-bot/internal/config"
	"quiz-bot/internal/infra/memory"
	"quiz-bot/internal/infra/postgres"
	infraredis "quiz-bot/internal/infra/redis"
	transport "quiz-bot/internal/transport/http"
	"quiz-bot/internal/transport/telegram"
)

// NewStartCmd builds the CLI subcommand to start the bot.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stdout)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var gateway app.Gateway
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
		store, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer store.Close()
		gateway = store
		logger.Info("using postgres storage")
	} else {
		gateway = memory.NewStore()
		logger.Warn("postgres url not configured, quizzes are kept in memory only")
	}

	g, ctx := errgroup.WithContext(ctx)

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Sessions.TTL, 24*time.Hour)
	var (
		quizzes        app.QuizRepository
		authoringStore app.SessionStore[app.AuthoringSession]
		attemptStore   app.SessionStore[app.AttemptSession]
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		redisTTL := config.TTLDuration(cfg.Redis.TTL, sessionTTL)
		quizzes = infraredis.NewQuizCache(redisClient, gateway, quizTTL)
		authoringStore = infraredis.NewSessionStore[app.AuthoringSession](redisClient, "authoring", redisTTL)
		attemptStore = infraredis.NewSessionStore[app.AttemptSession](redisClient, "taking", redisTTL)
	} else {
		quizzes = memory.NewQuizCache(gateway, quizTTL)
		authoring := memory.NewSessionStore[app.AuthoringSession](sessionTTL)
		attempts := memory.NewSessionStore[app.AttemptSession](sessionTTL)
		evictEvery := config.TTLDuration(cfg.Sessions.EvictInterval, 10*time.Minute)
		g.Go(func() error { authoring.RunEviction(ctx, evictEvery); return nil })
		g.Go(func() error { attempts.RunEviction(ctx, evictEvery); return nil })
		authoringStore, attemptStore = authoring, attempts
	}

	policy := app.RegistrationPolicy{Open: cfg.OpenRegistration(), Allowlist: cfg.Teachers.Allowlist}
	bot := app.NewBot(
		app.NewPanel(gateway, quizzes, policy, logger),
		app.NewAuthoring(quizzes, authoringStore, logger),
		app.NewTaking(quizzes, gateway, attemptStore, logger),
		logger,
	)

	mux := transport.NewMux(transport.NewWSHandler(bot, logger))
	if err := startTelegram(ctx, g, cfg, bot, mux, logger); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting quiz bot", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func startTelegram(ctx context.Context, g *errgroup.Group, cfg config.Config, bot *app.Bot, mux *http.ServeMux, logger *slog.Logger) error {
	if cfg.Telegram.Mode == "off" {
		return nil
	}
	if cfg.Telegram.Token == "" {
		logger.Warn("telegram token not configured, only the websocket chat is available")
		return nil
	}

	api, err := telegram.Connect(cfg.Telegram.Token, logger)
	if err != nil {
		return err
	}
	adapter := telegram.NewAdapter(bot, api, cfg.Telegram.Workers, logger)
	g.Go(func() error { return adapter.Run(ctx) })

	switch cfg.Telegram.Mode {
	case "webhook":
		if cfg.Telegram.WebhookURL == "" {
			return fmt.Errorf("telegram webhook mode needs webhook_url")
		}
		mux.Handle(cfg.Telegram.WebhookPath, adapter.WebhookHandler())
		if err := telegram.RegisterWebhook(api, cfg.Telegram.WebhookURL); err != nil {
			return err
		}
		logger.Info("telegram webhook registered", "path", cfg.Telegram.WebhookPath)
	case "polling":
		updates, err := telegram.StartPolling(api, cfg.Telegram.PollTimeout)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer api.StopReceivingUpdates()
			return adapter.Poll(ctx, updates)
		})
		logger.Info("telegram long polling started")
	default:
		return fmt.Errorf("unknown telegram mode %q", cfg.Telegram.Mode)
	}
	return nil
}
