// Package main initializes and starts the ProjectShelf HTTP(S) server,
// setting up configuration, logging, storage, repositories, services,
// handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/ProjectShelf/internal/auth"
	"github.com/atinyakov/ProjectShelf/internal/config"
	"github.com/atinyakov/ProjectShelf/internal/db"
	"github.com/atinyakov/ProjectShelf/internal/kv"
	"github.com/atinyakov/ProjectShelf/internal/logger"
	"github.com/atinyakov/ProjectShelf/internal/middleware"
	"github.com/atinyakov/ProjectShelf/internal/repository"
	"github.com/atinyakov/ProjectShelf/internal/server/handler/http"
	"github.com/atinyakov/ProjectShelf/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, options)
	if err != nil {
		zapLogger.Fatal("cannot init storage", zap.String("backend", options.Storage), zap.Error(err))
	}
	defer func() { _ = store.Close() }()
	zapLogger.Info("storage ready", zap.String("backend", options.Storage))

	secret, err := signingSecret(options.JWTSecret)
	if err != nil {
		zapLogger.Fatal("cannot create signing secret", zap.Error(err))
	}
	if options.JWTSecret == "" {
		zapLogger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	// Initialize repositories for users and projects.
	userRepo := repository.NewUserRepository(store)
	projectRepo := repository.NewProjectRepository(store)

	// Initialize business-logic services.
	tokens := auth.NewTokenService(secret, options.TokenTTL)
	userService := service.NewUserService(userRepo, tokens)
	projectService := service.NewProjectService(projectRepo)

	if options.AdminUser != "" {
		admin, err := userService.EnsureAdmin(ctx, options.AdminUser, options.AdminPassword)
		if err != nil {
			zapLogger.Fatal("cannot bootstrap admin", zap.String("user_name", options.AdminUser), zap.Error(err))
		}
		zapLogger.Info("admin account ready", zap.String("public_id", admin.PublicID))
	}

	// Create HTTP handlers for auth, user and project endpoints.
	authHandler := &http.AuthHandler{LoginService: userService}
	userHandler := &http.UserHandler{UserService: userService}
	projectHandler := &http.ProjectHandler{ProjectService: projectService}

	// Build the router with middleware and routes.
	router := http.NewRouter(
		authHandler,
		userHandler,
		projectHandler,
		middleware.TokenAuth(tokens, userRepo, zapLogger),
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if options.TLSEnabled() {
			zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
			err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
		} else {
			zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("shutdown error", zap.Error(err))
	}
}

// newStore opens the kv backend selected by options.Storage.
func newStore(ctx context.Context, options *config.Options) (kv.Store, error) {
	switch options.Storage {
	case config.StorageMemory:
		return kv.NewMemoryStore(), nil
	case config.StoragePostgres:
		pg, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return kv.NewPostgresStore(pg), nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: options.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return kv.NewRedisStore(client, options.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", options.Storage)
	}
}

// signingSecret returns configured as bytes, or 32 random bytes when empty.
func signingSecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
