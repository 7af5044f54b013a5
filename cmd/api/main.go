package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/talep-board/internal/api/http"
	"github.com/spec-kit/talep-board/internal/api/http/handlers"
	"github.com/spec-kit/talep-board/internal/auth"
	"github.com/spec-kit/talep-board/internal/board"
	"github.com/spec-kit/talep-board/internal/config"
	"github.com/spec-kit/talep-board/internal/feed"
	"github.com/spec-kit/talep-board/internal/observability"
	"github.com/spec-kit/talep-board/internal/persistence"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/internal/service"
	"github.com/spec-kit/talep-board/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	changeFeed := feed.NewRedisFeed(redis.Client, cfg.Board.FeedChannel, logger, metrics)

	pool := pg.PoolHandle()
	talepRepo := repository.NewTalepRepository(pool, changeFeed, logger)
	loginRepo := repository.NewLoginRepository(pool)

	tokens := service.NewTokenManagerFromConfig(cfg.Auth)
	authService := service.NewAuthService(loginRepo, tokens, cfg.Auth, cfg.Board, logger)
	talepService := service.NewTalepService(talepRepo, loginRepo, logger)

	committer := board.NewCommitter(talepRepo, logger)
	sessions := board.NewSessionManager(board.SessionManagerConfig{
		Store:      talepRepo,
		Committer:  committer,
		Subscriber: changeFeed,
		Logger:     logger,
		SLAWindow:  cfg.Board.SLAWindow(),
		Limit:      cfg.Board.ResultLimit,
	})
	defer sessions.Close()

	go evictIdleSessions(ctx, sessions, cfg.Board.SessionIdle(), logger)

	attachmentStore, err := storage.NewDiskStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to init attachment storage", zap.Error(err))
	}

	authMiddleware := auth.NewMiddleware(tokens)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Storage.MaxFileMB<<20) * cfg.Storage.MaxFiles,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	app.Static(cfg.Storage.PublicBase, cfg.Storage.Dir)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Taleps:         handlers.NewTalepHandler(talepService),
		Board:          handlers.NewBoardHandler(sessions, metrics, cfg.Board.MonitoredAssignees),
		Attachments:    handlers.NewAttachmentsHandler(attachmentStore),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func evictIdleSessions(ctx context.Context, sessions *board.SessionManager, maxIdle time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := sessions.EvictIdle(maxIdle); evicted > 0 {
				logger.Info("evicted idle sessions", zap.Int("count", evicted))
			}
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
