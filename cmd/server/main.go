package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"

	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/api/handlers"
	"github.com/maheshrc27/socialhub/internal/api/middleware"
	job "github.com/maheshrc27/socialhub/internal/jobs"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/queue"
	"github.com/maheshrc27/socialhub/internal/realtime"
	"github.com/maheshrc27/socialhub/internal/repository"
	"github.com/maheshrc27/socialhub/internal/service"
	"github.com/maheshrc27/socialhub/migrations"
	"github.com/maheshrc27/socialhub/pkg/utils"
)

const (
	tokenRefreshWindow = 30 * time.Minute
	subscriberBuffer   = 32
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

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}
	if err := migrations.Up(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	sealer, err := utils.NewTokenSealer([]byte(cfg.SecretKey))
	if err != nil {
		log.Fatalf("Invalid SECRET_KEY: %v", err)
	}

	registry := platform.NewRegistry(*cfg)
	if len(registry.Platforms()) == 0 {
		slog.Warn("no platform credentials configured")
	}

	objectStore, err := service.NewR2Store(context.Background(), cfg.R2)
	if err != nil {
		log.Fatalf("Failed to configure media storage: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	historyRepo := repository.NewPostingHistoryRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)

	hub := realtime.NewHub(subscriberBuffer)

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo, historyRepo)
	platformService := service.NewPlatformService(socialAccountRepo, analyticsRepo)
	credentialService := service.NewCredentialService(registry, socialAccountRepo, sealer)
	linkService := service.NewLinkService(registry, service.NewRedisNonceStore(rdb), socialAccountRepo, sealer, cfg.LinkNonceTTL)
	contentService := service.NewContentService(registry, socialAccountRepo, analyticsRepo, historyRepo,
		credentialService, hub, cfg.AggregationTimeout, cfg.PublishTimeout)
	mediaService := service.NewMediaService(objectStore, mediaAssetRepo, cfg.R2.PublicURL)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    service.MaxMediaSize + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:request_id} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)
	app.Post("/logout", auth.Logout)

	// account linking rides on the session cookie, the provider redirect included
	platformHandler := handlers.NewPlatformHandler(platformService, linkService, *cfg)
	link := app.Group("/auth", authMiddleware.AuthMiddleware())
	link.Get("/:platform", platformHandler.AddSocialAccount)
	link.Get("/:platform/callback", platformHandler.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Get("/user/history", user.PostingHistory)
	api.Post("/user/remove", user.RemoveUser)

	// social accounts api routes
	api.Get("/accounts", platformHandler.ListSocialAccounts)
	api.Post("/accounts/remove", platformHandler.DeleteSocialAccount)
	api.Get("/accounts/analytics", platformHandler.LatestSnapshots)
	api.Get("/accounts/:id/analytics", platformHandler.AccountSnapshots)

	content := handlers.NewContentHandler(contentService, client)
	api.Get("/mentions", content.Mentions)
	api.Post("/posts/publish", middleware.PublishLimiter(middleware.PublishLimit, middleware.PublishLimitWindow), content.Publish)
	api.Post("/posts/remove", content.RemovePost)
	api.Get("/posts/:platform/:id/analytics", content.PostAnalytics)
	api.Get("/analytics", content.Analytics)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media", media.Upload)
	api.Get("/media", media.List)

	// websocket listener, kept on net/http for the gorilla upgrader
	wsMux := http.NewServeMux()
	wsMux.Handle("/api/ws", realtime.NewHandler(hub, sessionAuthenticator(*cfg), realtime.DefaultStockInterval, cfg.FrontendURL))
	wsServer := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           wsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, credentialService, tokenRefreshWindow)
	analyticsJob := job.NewAnalyticsJob(socialAccountRepo, contentService)

	c := cron.New()
	if err := c.AddFunc("@every 00h10m00s", func() { refreshTokenJob.RefreshTokens(context.Background()) }); err != nil {
		log.Fatalf("Failed to schedule token refresh: %v", err)
	}
	if err := c.AddFunc("@every 06h00m00s", func() { analyticsJob.CollectAll(context.Background()) }); err != nil {
		log.Fatalf("Failed to schedule analytics collection: %v", err)
	}
	c.Start()

	//queue
	queueW := queue.NewQueue(contentService)
	asynqServer := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})
	mux := asynq.NewServeMux()
	queueW.Register(mux)

	log.Println("Starting the Asynq server...")
	if err := asynqServer.Start(mux); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start websocket server: %v", err)
		}
	}()
	log.Printf("Websocket endpoint listening on %s/api/ws", cfg.WSAddr)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, wsServer, asynqServer, c, rdb, db)
}

// sessionAuthenticator resolves websocket users from the session cookie or a
// ?token= query parameter. Unauthenticated sockets still receive public events.
func sessionAuthenticator(cfg config.Config) realtime.Authenticator {
	return func(r *http.Request) int64 {
		token := r.URL.Query().Get("token")
		if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
			token = cookie.Value
		}
		if token == "" {
			return 0
		}

		userID, err := utils.ValidateToken(cfg.SecretKey, token)
		if err != nil {
			return 0
		}
		return userID
	}
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, wsServer *http.Server, asynqServer *asynq.Server, c *cron.Cron, rdb *redis.Client, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()

	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsServer.Shutdown(ctx); err != nil {
		log.Printf("Failed to shut down websocket server: %v", err)
	}

	asynqServer.Shutdown()

	if err := rdb.Close(); err != nil {
		log.Printf("Failed to close redis: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
