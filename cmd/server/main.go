package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/config"
	"github.com/sujalbistaa/confessions/internal/confessions"
	"github.com/sujalbistaa/confessions/internal/db"
	"github.com/sujalbistaa/confessions/internal/docstore"
	routes "github.com/sujalbistaa/confessions/internal/http"
	"github.com/sujalbistaa/confessions/internal/kv"
	"github.com/sujalbistaa/confessions/internal/localstore"
	"github.com/sujalbistaa/confessions/internal/logging"
	"github.com/sujalbistaa/confessions/internal/moderation"
	"github.com/sujalbistaa/confessions/internal/ws"
)

func main() {
	// Load .env before anything reads the environment. Production sets
	// variables directly, so a missing file is fine.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	// 1. Load configuration and build the logger
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Connect the remote store. Failure leaves the board on local storage.
	remote := openRemote(cfg, logger)

	// 3. Open the local fallback store
	local, err := kv.Open(cfg.LocalStoreURL, logger)
	if err != nil {
		logger.Fatal("Failed to open local store", zap.Error(err))
	}

	// 4. Initialize WebSocket Hub
	hub := ws.NewHub(logger)
	go hub.Run()
	defer hub.Close()

	// 5. Build the repository and moderation gateway
	repo := confessions.New(remote, localstore.New(local, logger),
		confessions.WithLimit(cfg.QueryLimit),
		confessions.WithLogger(logger),
		confessions.WithEvents(routes.Broadcaster(hub)),
	)
	moderator := moderation.NewGateway(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.ModerationModel, logger)

	// 6. Setup Routes
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	router := gin.New()
	routes.SetupRoutes(ctx, router, routes.Deps{
		Repo:         repo,
		Moderator:    moderator,
		Hub:          hub,
		Log:          logger,
		CORSOrigin:   cfg.CORSOrigin,
		PostInterval: cfg.PostInterval(),
		Cookies:      routes.NewCookiePolicy(cfg.CookieSameSite, cfg.CookieSecure),
	})

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Port),
			zap.Bool("remote", repo.RemoteAvailable()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}

// openRemote returns nil when no remote is configured or it cannot be reached.
func openRemote(cfg *config.Config, logger *zap.Logger) confessions.Backend {
	if cfg.RemoteDBURL == "" {
		logger.Info("no remote database configured, running on local storage")
		return nil
	}
	database, err := db.Open(cfg.RemoteDBURL, logger)
	if err != nil {
		logger.Warn("remote database unavailable, running on local storage", zap.Error(err))
		return nil
	}

	logger.Info("running database migrations")
	store := docstore.New(database)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		logger.Warn("remote migration failed, running on local storage", zap.Error(err))
		return nil
	}
	return store
}
