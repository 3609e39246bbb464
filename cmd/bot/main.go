// Command bot runs the group summarizer: a Telegram bot that records group
// chatter into SQLite and, on demand, turns the recent backlog into a
// humorous per-user digest via the Gemini API. A small Gin server exposes
// /health and /metrics alongside the polling loop.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ghonche/summary-bot/internal/bot"
	"github.com/ghonche/summary-bot/internal/config"
	"github.com/ghonche/summary-bot/internal/domain"
	"github.com/ghonche/summary-bot/internal/gemini"
	httpapi "github.com/ghonche/summary-bot/internal/http"
	"github.com/ghonche/summary-bot/internal/observability"
	"github.com/ghonche/summary-bot/internal/repo"
	"github.com/ghonche/summary-bot/internal/services"
	"github.com/ghonche/summary-bot/internal/sysutil"
)

// version is stamped by the build; the default marks ad-hoc builds.
var version = "dev"

// messageStoreShim adapts the repository free functions to the
// services.MessageStore interface expected by the SummaryService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type messageStoreShim struct{}

// FetchRecent proxies repo.ListRecentMessages.
func (messageStoreShim) FetchRecent(ctx context.Context, db *gorm.DB, chatID int64, n int) ([]domain.Message, error) {
	return repo.ListRecentMessages(db.WithContext(ctx), chatID, n)
}

// TopRepliedTo proxies repo.TopRepliedTo.
func (messageStoreShim) TopRepliedTo(ctx context.Context, db *gorm.DB, chatID int64, k int) ([]repo.ReplyCount, error) {
	return repo.TopRepliedTo(db.WithContext(ctx), chatID, k)
}

// LookupByMessageID proxies repo.GetByMessageID.
func (messageStoreShim) LookupByMessageID(ctx context.Context, db *gorm.DB, chatID int64, messageID int) (*domain.Message, error) {
	return repo.GetByMessageID(db.WithContext(ctx), chatID, messageID)
}

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("failed to open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	gen, err := gemini.NewClient(ctx, cfg.GeminiAPIKey,
		sysutil.FirstNonEmpty(cfg.GeminiModel, gemini.DefaultModel))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gemini client")
	}
	log.Info().Str("model", gen.Model()).Msg("gemini client ready")

	svc := services.NewSummaryService(db, messageStoreShim{}, gen)
	svc.ChunkSize = cfg.ChunkSize
	svc.TopReplies = cfg.TopReplies

	tg, err := bot.New(cfg.TelegramToken, db, svc, log.Logger, bot.Options{
		DefaultWindow:  cfg.DefaultWindow,
		MaxWindow:      cfg.MaxWindow,
		SummaryTimeout: cfg.SummaryTimeout,
		RatePerSec:     cfg.RateRPS,
		RateBurst:      cfg.RateBurst,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to telegram")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		errCh <- tg.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("component failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("bye")
}
