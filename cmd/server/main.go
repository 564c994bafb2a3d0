package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/adapter"
	"github.com/conscious-collective/relay-social/internal/api/handlers"
	"github.com/conscious-collective/relay-social/internal/api/middleware"
	job "github.com/conscious-collective/relay-social/internal/jobs"
	"github.com/conscious-collective/relay-social/internal/queue"
	"github.com/conscious-collective/relay-social/internal/repository"
	"github.com/conscious-collective/relay-social/internal/scheduler"
	"github.com/conscious-collective/relay-social/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	asynqClient := asynq.NewClient(redisConn)
	defer asynqClient.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)
	webhookSubRepo := repository.NewWebhookSubscriptionRepository(db)
	webhookDeliveryRepo := repository.NewWebhookDeliveryRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)

	registry := adapter.NewRegistry(
		adapter.NewInstagramAdapter(),
		adapter.NewTwitterAdapter(),
		adapter.NewLinkedinAdapter(),
	)

	deliveryQueue := queue.NewClient(asynqClient)
	webhookService := service.NewWebhookService(*cfg, webhookSubRepo, webhookDeliveryRepo, deliveryQueue)
	publisherService := service.NewPublisherService(*cfg, postRepo, socialAccountRepo, registry, webhookService)
	postService := service.NewPostService(postRepo, socialAccountRepo, publisherService)
	accountService := service.NewAccountService(cfg, socialAccountRepo, webhookService)
	analyticsService := service.NewAnalyticsService(cfg, postRepo, socialAccountRepo, engagementRepo, registry)
	r2Service := service.NewR2Service(cfg)
	mediaService := service.NewMediaService(cfg, mediaAssetRepo, r2Service)
	apiKeyService := service.NewApiKeyService(apiKeyRepo)

	authMiddleware := middleware.NewAuthMiddleware(cfg, apiKeyService)

	account := handlers.NewAccountHandler(accountService, cfg)
	app.Get("/auth/:platform", account.AddSocialAccount)
	app.Get("/auth/:platform/callback", account.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Patch("/posts/:id", post.UpdatePost)
	api.Post("/posts/:id/publish", post.PublishPost)
	api.Post("/posts/remove", post.RemovePost)

	api.Get("/accounts", account.ListSocialAccounts)
	api.Post("/accounts/remove", account.DeleteSocialAccount)

	webhook := handlers.NewWebhookHandler(webhookService)
	api.Post("/webhooks", webhook.CreateSubscription)
	api.Get("/webhooks", webhook.ListSubscriptions)
	api.Patch("/webhooks/:id", webhook.ToggleSubscription)
	api.Delete("/webhooks/:id", webhook.RemoveSubscription)
	api.Get("/webhooks/:id/deliveries", webhook.ListDeliveries)

	analytics := handlers.NewAnalyticsHandler(analyticsService)
	api.Get("/posts/:id/engagement", analytics.GetEngagement)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media/upload", media.UploadMedia)
	api.Get("/media", media.ListMedia)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, accountService, webhookService)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(postRepo, publisherService, cfg.SchedulerInterval, cfg.PublishingTimeout, nil)
	go sched.Start(ctx)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		worker := queue.NewWorker(webhookService)
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeDeliverWebhook, worker.HandleDeliverWebhookTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, cancel)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, cancel context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	cancel()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
