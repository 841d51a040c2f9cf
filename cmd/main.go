package main

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

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"

	"github.com/iderdiyok/basketball-tourney/config"
	"github.com/iderdiyok/basketball-tourney/db"
	"github.com/iderdiyok/basketball-tourney/handlers"
	"github.com/iderdiyok/basketball-tourney/livescore"
	"github.com/iderdiyok/basketball-tourney/publisher"
	"github.com/iderdiyok/basketball-tourney/repositories"
	api "github.com/iderdiyok/basketball-tourney/routes"
	"github.com/iderdiyok/basketball-tourney/scorer"
	"github.com/iderdiyok/basketball-tourney/services"
	"github.com/iderdiyok/basketball-tourney/storage"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Int("half_time_seconds", cfg.Scorer.HalfTimeSeconds),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.Migrate(ctx, dbConn); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	// Архив протоколов в Cloudflare R2, если настроен
	var archiver services.ResultArchiver
	if cfg.ArchiveEnabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = services.NewArchiveService(uploader, clockwork.NewRealClock())
		logger.Info("Cloudflare R2 box score archive enabled", slog.String("bucket", cfg.R2BucketName))
	}

	gameRepo := repositories.NewPostgresGameRepository(dbConn)
	gameService := services.NewGameService(gameRepo, archiver, logger)

	// Инициализация WebSocket Hub
	wsHub := livescore.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	observers := []scorer.Observer{wsHub}
	if cfg.RedisURL != "" {
		redisClient, err := publisher.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()

		streamPublisher := publisher.NewStreamPublisher(redisClient, cfg.LiveStreamKey, logger)
		go streamPublisher.Run(ctx)
		observers = append(observers, streamPublisher)
		logger.Info("live score stream enabled", slog.String("stream", cfg.LiveStreamKey))
	}

	manager := scorer.NewManager(gameService, scorer.Options{
		HalfTimeSeconds: cfg.Scorer.HalfTimeSeconds,
		TickInterval:    cfg.Scorer.TickInterval,
		AutoSaveDelay:   cfg.Scorer.AutoSaveDelay,
		StoreTimeout:    cfg.Scorer.StoreTimeout,
		Clock:           clockwork.NewRealClock(),
		Logger:          logger,
		Observers:       observers,
		Notifiers:       []scorer.Notifier{wsHub},
	})

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Scorer:    handlers.NewScorerHandler(manager, wsHub, logger),
		Game:      handlers.NewGameHandler(gameService),
		WebSocket: handlers.NewWebSocketHandler(wsHub, cfg.CORSOrigins, logger),
		Health:    handlers.NewHealthHandler(dbConn, manager.Active),
	}, []byte(cfg.JWTSecretKey), cfg.CORSOrigins)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			exitCode = 1
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			exitCode = 1
		} else {
			logger.Info("server shutdown complete")
		}
	}

	// Сессии закрываются раньше соединения с базой.
	manager.CloseAll()
	stop()
	logger.Info("application exited")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
