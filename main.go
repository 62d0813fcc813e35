package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/linkedout/avatarbackend/capture"
	"github.com/linkedout/avatarbackend/config"
	"github.com/linkedout/avatarbackend/database"
	"github.com/linkedout/avatarbackend/handlers"
	"github.com/linkedout/avatarbackend/media"
	"github.com/linkedout/avatarbackend/realtime"
	"github.com/linkedout/avatarbackend/repository"
	"github.com/linkedout/avatarbackend/services"
	"github.com/linkedout/avatarbackend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.AvatarsPath, cfg.HeadshotsPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}

	mediaSubDirs := map[media.AssetType]string{
		media.AssetTypeAvatar:   filepath.Base(cfg.AvatarsPath),
		media.AssetTypeHeadshot: filepath.Base(cfg.HeadshotsPath),
	}
	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath, cfg.PublicBaseURL, mediaSubDirs)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize media store: %v", err)
	}

	userRepo := repository.NewGormUserRepository(db)
	profileRepo := repository.NewGormProfileRepository(db)
	avatarRepo := repository.NewGormAvatarRepository(db)

	avatarService := &services.AvatarService{
		Decoder:    media.NewDecoder(),
		Compositor: media.NewCompositor(cfg.AvatarOutputSize, cfg.JpegQuality),
		Store:      mediaStore,
		Profiles:   profileRepo,
		Avatars:    avatarRepo,
		ZoomBounds: media.ZoomBounds{Min: cfg.ZoomMin, Max: cfg.ZoomMax},
	}

	log.Printf("Initializing headshot worker pool (Workers: %d, Queue Size: %d)...", cfg.NumWorkers, cfg.HeadshotQueueSize)
	headshotGen := workers.NewHeadshotGenerator(mediaStore, profileRepo, cfg.HeadshotSize, cfg.HeadshotQueueSize, cfg.NumWorkers)
	defer headshotGen.Stop()

	acquirer := capture.NewAcquirer(func() capture.FrameSource { return capture.NewGocvSource() })
	defer acquirer.StopSession()

	hub := realtime.NewHub()
	go hub.Run()

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing avatars in: %s", cfg.AvatarsPath)
	log.Printf("Storing headshots in: %s", cfg.HeadshotsPath)
	log.Printf("Avatar output size: %dpx (0 = native crop resolution)", cfg.AvatarOutputSize)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	authHandler := handlers.NewAuthHandler(userRepo, profileRepo, cfg.JWTSecret)
	profileHandler := &handlers.ProfileHandler{ProfileRepo: profileRepo}
	avatarHandler := &handlers.AvatarHandler{
		Service:    avatarService,
		AvatarRepo: avatarRepo,
		Headshots:  headshotGen,
		Hub:        hub,
	}
	cameraHandler := &handlers.CameraHandler{
		Acquirer: acquirer,
		Constraints: capture.Constraints{
			DeviceID:         cfg.CameraDeviceID,
			Width:            cfg.CameraWidth,
			Height:           cfg.CameraHeight,
			ReadinessTimeout: cfg.ReadinessTimeout,
		},
	}

	requireAuth := func(next http.Handler) http.Handler {
		return handlers.AuthMiddleware(userRepo, []byte(cfg.JWTSecret), next)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)

				r.Route("/profile", func(r chi.Router) {
					r.Get("/", profileHandler.GetProfile)
					r.Put("/", profileHandler.UpdateProfile)

					r.Route("/avatar", func(r chi.Router) {
						r.Post("/", avatarHandler.SaveAvatar)
						r.Delete("/", avatarHandler.DeleteAvatar)
						r.Get("/history", avatarHandler.AvatarHistory)
						r.Put("/record", avatarHandler.RetryRecordUpdate)
					})
				})

				r.Route("/camera/session", func(r chi.Router) {
					r.Post("/", cameraHandler.StartSession)
					r.Get("/", cameraHandler.SessionStatus)
					r.Delete("/", cameraHandler.StopSession)
					r.Post("/capture", cameraHandler.CaptureFrame)
					r.Post("/retry", cameraHandler.RetrySession)
				})
			})
		})

		// long-lived streams stay outside the request timeout
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/camera/preview", cameraHandler.Preview)
		})
		r.Get("/ws", hub.ServeWS)

		avatarSubDir := filepath.Base(cfg.AvatarsPath)
		r.Get(fmt.Sprintf("/%s/*", avatarSubDir), handlers.AssetServer(cfg.MediaStoragePath, avatarSubDir))
		log.Printf("Registered avatar server at /%s/*", avatarSubDir)

		headshotSubDir := filepath.Base(cfg.HeadshotsPath)
		r.Get(fmt.Sprintf("/%s/*", headshotSubDir), handlers.AssetServer(cfg.MediaStoragePath, headshotSubDir))
		log.Printf("Registered headshot server at /%s/*", headshotSubDir)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: the MJPEG preview and websocket connections write
		// for as long as the client stays connected
		IdleTimeout: 120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
