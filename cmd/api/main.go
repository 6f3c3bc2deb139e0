package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/opsdesk/internal/api/http"
	"github.com/spec-kit/opsdesk/internal/api/http/handlers"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/config"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/service"
	"github.com/spec-kit/opsdesk/internal/sla"
	"github.com/spec-kit/opsdesk/internal/worker"
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
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

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

	var (
		ticketRepo  repository.TicketRepository
		commentRepo repository.CommentRepository
		tenantRepo  repository.TenantRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
		commentRepo = repository.NewCommentRepository(pool)
		tenantRepo = repository.NewTenantRepository(pool)
	} else {
		logger.Warn("running with in-memory ticket store")
		mem := repository.NewMemStore()
		ticketRepo = mem.Tickets()
		commentRepo = mem.Comments()
		tenantRepo = mem.Tenants()
	}

	dispatcher := events.NewInMemoryDispatcher()
	registry := sla.NewRegistry(dispatcher, logger)
	defer registry.ResetAll()

	policy := auth.NewPolicy(cfg.Policy.AnalystMayClose)
	queueService := service.NewQueueService(ticketRepo, registry, cfg.SLA)
	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		TenantRepo:  tenantRepo,
		Dispatcher:  dispatcher,
		SLARegistry: registry,
		Policy:      policy,
		Queue:       queueService,
		SLAConfig:   cfg.SLA,
		Logger:      logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: ticketRepo,
		Lifecycle:  lifecycleService,
		Dispatcher: dispatcher,
		Policy:     policy,
		Logger:     logger,
	})

	gateway := service.NewNotificationGateway(dispatcher, service.LogSender{Logger: logger}, logger)
	relay := events.NewRedisPublisher(redis.Client, cfg.Redis.EventChannel, logger)
	worker.StartNotificationWorker(gateway, relay, dispatcher)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokens)

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(lifecycleService, assignmentService, queueService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	lifecycleService.ResetSLATimers()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
