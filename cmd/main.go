package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/stackdhq/stackd/internal/api/v1/handlers"
	"github.com/stackdhq/stackd/internal/api/v1/routes"
	"github.com/stackdhq/stackd/internal/config"
	"github.com/stackdhq/stackd/internal/db"
	"github.com/stackdhq/stackd/internal/db/repos"
	"github.com/stackdhq/stackd/internal/events"
	"github.com/stackdhq/stackd/internal/logger"
	"github.com/stackdhq/stackd/internal/queue"
	"github.com/stackdhq/stackd/internal/services"
	"github.com/stackdhq/stackd/internal/store"
	"github.com/stackdhq/stackd/internal/templates"
	"github.com/stackdhq/stackd/internal/terraform"
	"github.com/stackdhq/stackd/internal/workspace"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	logger.Initialize()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatalf("Invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Failed to close redis client: %v", err)
		}
	}()

	q, err := buildQueue(cfg, redisClient)
	if err != nil {
		logger.Fatalf("Failed to initialize queue: %v", err)
	}

	jobStore := store.NewRedisStore(redisClient, cfg.Redis.JobResultTTL)

	gormDB, err := db.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Updates go out over redis; the relay feeds them back into the local
	// hub, so streaming clients on any API instance see every worker's
	// updates exactly once.
	hub := events.NewHub()
	publisher := events.NewRedisPublisher(redisClient)
	go events.Relay(ctx, redisClient, hub)

	orch := services.NewOrchestrator(
		jobStore,
		q,
		templates.NewResolver(cfg.Terraform.TemplatesDir),
		workspace.NewBuilder(cfg.Terraform.WorkspacesDir),
		terraform.NewRunner(terraform.NewExecExecutor(cfg.Terraform.Binary)),
		publisher,
	)
	approval := services.NewApprovalService(repos.NewRequestRepository(gormDB), orch)

	// Worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		wg.Add(1)
		go services.LaunchWorker(ctx, &wg, orch, q, cfg.Worker)
	}
	logger.Infof("Started %d workers", cfg.Worker.Count)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})
	routes.Register(app,
		handlers.NewJobHandler(orch, q),
		handlers.NewRequestHandler(approval),
		handlers.NewStreamHandler(hub))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Infof("API listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			logger.Errorf("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	if err := app.Shutdown(); err != nil {
		logger.Errorf("Failed to shut down HTTP server: %v", err)
	}
	wg.Wait()
	logger.Info("Shutdown complete")
}

func buildQueue(cfg config.Config, redisClient *redis.Client) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case "redis":
		return queue.NewRedisQueue(redisClient), nil
	case "file":
		return queue.NewFileQueue(cfg.Queue.Dir)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
