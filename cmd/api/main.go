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

	httptransport "github.com/spec-kit/storefront-auth/internal/api/http"
	"github.com/spec-kit/storefront-auth/internal/api/http/handlers"
	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/config"
	"github.com/spec-kit/storefront-auth/internal/events"
	"github.com/spec-kit/storefront-auth/internal/observability"
	"github.com/spec-kit/storefront-auth/internal/persistence"
	"github.com/spec-kit/storefront-auth/internal/repository"
	"github.com/spec-kit/storefront-auth/internal/service"
	"github.com/spec-kit/storefront-auth/internal/worker"
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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.Pool == nil {
		logger.Fatal("POSTGRES_DSN is required for the user directory")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	userRepo := repository.NewUserRepository(pg.Pool)
	var (
		sessionRepo repository.SessionRepository
		resetRepo   repository.PasswordResetRepository
	)
	switch cfg.Session.Store {
	case "postgres":
		sessionRepo = repository.NewPostgresSessionRepository(pg.Pool)
		resetRepo = repository.NewPasswordResetRepository(pg.Pool)
	default:
		sessionRepo = repository.NewRedisSessionRepository(redis.Client)
		resetRepo = repository.NewRedisPasswordResetRepository(redis.Client)
	}
	logger.Info("session store selected", zap.String("store", cfg.Session.Store))

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, auth.WithPasswordResetTTL(cfg.Auth.PasswordResetTTL()))
	if err != nil {
		logger.Fatal("failed to init token manager", zap.Error(err))
	}
	hasher := auth.NewPasswordHasher(auth.HashParams{
		MemoryKiB:   cfg.Auth.Argon2MemoryKiB,
		Iterations:  cfg.Auth.Argon2Iterations,
		Parallelism: cfg.Auth.Argon2Parallelism,
		Concurrency: cfg.Auth.HashConcurrency,
	})

	var revocations *auth.CachedSessionChecker
	var checker auth.SessionChecker
	if cfg.Auth.RevocationCheck {
		revocations = auth.NewCachedSessionChecker(sessionRepo, cfg.Auth.RevocationCacheTTL(),
			auth.WithLookupTimeout(cfg.Session.StoreTimeout()))
		checker = revocations
		logger.Info("per-request session revocation check enabled")
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, cfg.Notify).RegisterHandlers()

	authService, err := service.NewAuthService(ctx, service.AuthDependencies{
		UserRepo:          userRepo,
		SessionRepo:       sessionRepo,
		PasswordResetRepo: resetRepo,
		Hasher:            hasher,
		Tokens:            tokens,
		SessionChecker:    checker,
		Dispatcher:        dispatcher,
		Logger:            logger,
		Metrics:           metrics,
		StoreTimeout:      cfg.Session.StoreTimeout(),
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}

	cookie := auth.CookieSettings{Secure: cfg.Auth.CookieSecure}
	authMiddleware := auth.NewAuthMiddleware(tokens, auth.MiddlewareConfig{
		Routes:       auth.NewRouteTable(auth.RouteTableConfig{Public: cfg.Routes.Public}),
		Cookie:       cookie,
		Logger:       logger,
		Metrics:      metrics,
		Sessions:     checker,
		StoreTimeout: cfg.Session.StoreTimeout(),
	})

	var cache handlers.RevocationCache
	if revocations != nil {
		cache = revocations
	}

	cleanupDone := worker.StartSessionCleanupWorker(ctx, sessionRepo, cfg.Session.CleanupInterval(), cfg.Session.StoreTimeout(), logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:              handlers.NewAuthHandler(authService, cookie, cache, logger),
		AuthMiddleware:    authMiddleware,
		Metrics:           metrics,
		AttemptsPerMinute: cfg.Auth.LoginRateLimitPerMinute,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	<-cleanupDone
	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
