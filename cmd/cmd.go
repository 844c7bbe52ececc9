package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fauxto-booth-backend/internal/config"
	gen "fauxto-booth-backend/internal/generator"
	"fauxto-booth-backend/internal/handlers"
	"fauxto-booth-backend/internal/middleware"
	"fauxto-booth-backend/internal/repository"
	"fauxto-booth-backend/internal/services"
	"fauxto-booth-backend/internal/storage"
	"fauxto-booth-backend/internal/workers"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize repositories
	boothRepo := repository.NewBoothRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	fauxtoRepo := repository.NewFauxtoRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	galleryRepo := repository.NewGalleryRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// Initialize storage and generator
	store, err := storage.NewS3Store(context.Background(), storage.S3Options{
		Region:    cfg.AWS.Region,
		Bucket:    cfg.AWS.S3Bucket,
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
		Endpoint:  cfg.AWS.Endpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create image store")
	}

	generator := gen.NewClient(gen.Options{
		BaseURL:     cfg.Generator.BaseURL,
		Token:       cfg.Generator.Token,
		Model:       cfg.Generator.Model,
		Size:        cfg.Generator.Size,
		AspectRatio: cfg.Generator.AspectRatio,
	})

	var push *services.PushNotifier
	if cfg.Push.Enabled {
		push, err = services.NewPushNotifier(cfg.Push.P12Path, cfg.Push.P12Password,
			cfg.Push.Topic, cfg.Push.Production)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
	}

	// Initialize services
	wsHub := services.NewWSHub()
	boothService := services.NewBoothService(
		boothRepo, uploadRepo, fauxtoRepo, galleryRepo,
		store, generator, wsHub, push,
		cfg.Booth, cfg.Server.PublicBaseURL,
	)
	directoryService := services.NewDirectoryService(directoryRepo, boothService)
	galleryService := services.NewGalleryService(galleryRepo)
	recordService := services.NewRecordService(fauxtoRepo, boothRepo)
	authService := services.NewAuthService(cfg.Admin.Password, cfg.Admin.JWTSecret)

	// Initialize job runner
	runner := workers.NewRunner(jobRepo, boothService, cfg.Jobs)
	boothService.SetDispatcher(runner)
	runner.Start()
	defer runner.Stop()

	if err := runner.Recover(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover unfinished jobs")
	}

	// Initialize handlers
	boothHandler := handlers.NewBoothHandler(directoryService, boothService)
	fauxtoHandler := handlers.NewFauxtoHandler(recordService)
	galleryHandler := handlers.NewGalleryHandler(galleryService)
	imageHandler := handlers.NewImageHandler(store)
	adminHandler := handlers.NewAdminHandler(authService, boothService, directoryService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, boothService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Identity-Token"},
		AllowCredentials: false,
	}).Handler)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/booths", boothHandler.ListLatest)
		r.Get("/booths/{slug}", boothHandler.GetBooth)
		r.Get("/fauxtos/{id}", fauxtoHandler.GetFauxto)
		r.Get("/images/*", imageHandler.GetImage)
		r.Post("/admin/login", adminHandler.Login)

		// Guest routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.IdentityMiddleware)
			r.Post("/booths", boothHandler.CreateBooth)
			r.Post("/booths/{slug}/uploads", boothHandler.UploadSelfie)
			r.Post("/booths/{slug}/reshoot", boothHandler.Reshoot)
			r.Post("/booths/{slug}/backdrop", boothHandler.RefreshBackdrop)
			r.Put("/booths/{slug}/group-size", boothHandler.SetGroupSize)
			r.Get("/me/fauxtos", galleryHandler.MyFauxtos)
			r.Get("/me/booths", galleryHandler.MyBooths)
			r.Post("/me/push-token", galleryHandler.RegisterPushToken)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuthMiddleware(authService))
			r.Get("/admin/booths", adminHandler.ListBooths)
			r.Get("/admin/booths/{slug}/uploads", adminHandler.ListUploads)
			r.Get("/admin/fauxtos", adminHandler.ListFauxtos)
			r.Delete("/admin/booths/{slug}", adminHandler.DeleteBooth)
			r.Delete("/admin/fauxtos/{id}", adminHandler.DeleteFauxto)
			r.Delete("/admin/uploads/{id}", adminHandler.DeleteUpload)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
