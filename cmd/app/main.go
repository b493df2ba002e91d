package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oziev02/pagecomments/internal/config"
	httphandler "github.com/oziev02/pagecomments/internal/delivery/http"
	"github.com/oziev02/pagecomments/internal/domain"
	"github.com/oziev02/pagecomments/internal/infrastructure/database"
	"github.com/oziev02/pagecomments/internal/infrastructure/session"
	"github.com/oziev02/pagecomments/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	logger.Info("database connection established")

	repo := database.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		logger.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	pingers := httphandler.Pingers{repo}

	var sessionStore scs.Store
	if cfg.Redis.URL != "" {
		redisStore, err := session.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		sessionStore = redisStore
		pingers = append(pingers, redisStore)
		logger.Info("using redis for visitor sessions")
	} else {
		logger.Info("using in-memory visitor sessions")
	}

	sessions := session.NewManager(sessionStore, session.Options{
		CookieName: cfg.Session.CookieName,
		Lifetime:   cfg.Session.Lifetime,
		Secure:     cfg.Session.Secure,
	})

	if cfg.Comments.PrivilegedEmail == "" {
		logger.Warn("COMMENTS_ADMIN_EMAIL is not set, no comment will be marked as admin")
	}
	commentUseCase := usecase.NewCommentUseCase(repo, cfg.Comments.PrivilegedEmail)

	var treeOptions []domain.TreeOption
	if cfg.Comments.OrphansAsRoots {
		treeOptions = append(treeOptions, domain.WithOrphansAsRoots())
	}

	commentHandler, err := httphandler.NewCommentHandler(commentUseCase, sessions, pingers, httphandler.HandlerConfig{
		Limits: domain.Limits{
			MaxLength: cfg.Comments.MaxLength,
			Cooldown:  cfg.Comments.Cooldown,
		},
		TreeOptions:   treeOptions,
		MaxReplyDepth: cfg.Comments.MaxReplyDepth,
	}, logger)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		os.Exit(1)
	}

	mux := httphandler.NewRouter(commentHandler)

	var handler http.Handler = mux
	handler = sessions.LoadAndSave(handler)
	handler = httphandler.CORSMiddleware(cfg.Server.CORSOrigin, handler)
	handler = httphandler.LoggingMiddleware(logger, handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
