package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"illustrator-server/internal/authutils"
	"illustrator-server/internal/cache"
	"illustrator-server/internal/config"
	"illustrator-server/internal/credits"
	"illustrator-server/internal/database"
	"illustrator-server/internal/generation"
	"illustrator-server/internal/handler"
	"illustrator-server/internal/logger"
	"illustrator-server/internal/messaging"
	"illustrator-server/internal/repository"
	"illustrator-server/internal/service"
	"illustrator-server/internal/storage"
	"illustrator-server/internal/vision"
)

func main() {
	// Загрузка переменных окружения (.env опционален в production)
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewDBPool(ctx, cfg, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		zap.L().Fatal("Failed to run migrations", zap.Error(err))
	}

	// --- Dependency Injection ---
	storyRepo := repository.NewPgStoryRepository(pool, log)
	sceneRepo := repository.NewPgSceneRepository(pool, log)
	characterRepo := repository.NewPgCharacterRepository(pool, log)
	attemptRepo := repository.NewPgAttemptRepository(pool, log)
	ledger := credits.NewPgLedger(pool, log)

	providers := make(map[string]generation.Provider)
	if cfg.OpenAIAPIKey != "" {
		openaiProvider, err := generation.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ProviderTimeout, log)
		if err != nil {
			zap.L().Fatal("Failed to create OpenAI provider", zap.Error(err))
		}
		providers[generation.ProviderOpenAI] = openaiProvider
	}
	if cfg.DiffusionBaseURL != "" {
		providers[generation.ProviderDiffusion] = generation.NewHTTPProvider(cfg.DiffusionBaseURL, cfg.DiffusionAPIKey, cfg.ProviderTimeout, log)
	}
	if len(providers) == 0 {
		zap.L().Fatal("No image generation providers configured: set OPENAI_API_KEY or DIFFUSION_API_BASE_URL")
	}

	// Vision-клиент опционален: без него пропускаются описания референсов
	// и пост-генерационная критика.
	var critic generation.Critic
	var describer service.CharacterDescriber
	if cfg.VisionEnabled && cfg.OpenAIAPIKey != "" {
		visionClient, err := vision.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.VisionModel, cfg.ProviderTimeout, log)
		if err != nil {
			zap.L().Fatal("Failed to create vision client", zap.Error(err))
		}
		critic = visionClient
		describer = visionClient
		zap.L().Info("Vision client enabled", zap.String("model", cfg.VisionModel))
	}

	engine := generation.NewEngine(providers, critic, cfg.CritiqueThreshold, log)

	var blobs storage.BlobStore
	if cfg.StorageBucket != "" {
		gcsStore, err := storage.NewGCSBlobStore(ctx, cfg.StorageBucket, cfg.StorageCDNDomain, cfg.StorageCredentialsFile, log)
		if err != nil {
			zap.L().Fatal("Failed to create GCS blob store", zap.Error(err))
		}
		defer gcsStore.Close()
		blobs = gcsStore
	} else {
		zap.L().Warn("IMAGE_BUCKET_NAME not set, using in-memory blob store (images are lost on restart)")
		blobs = storage.NewMemoryBlobStore()
	}

	var publisher messaging.EventPublisher = messaging.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		mqPublisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.GenerationEventsQueue, log)
		if err != nil {
			zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqPublisher.Close()
		publisher = mqPublisher
		zap.L().Info("Connected to RabbitMQ", zap.String("queue", cfg.GenerationEventsQueue))
	}

	svc := service.NewIllustrationService(service.Deps{
		Stories:    storyRepo,
		Scenes:     sceneRepo,
		Characters: characterRepo,
		Attempts:   attemptRepo,
		Ledger:     ledger,
		Engine:     engine,
		Blobs:      blobs,
		Publisher:  publisher,
		Describer:  describer,
		RefImages:  cache.New(cfg.CacheCapacity, cfg.CacheTTL),
		Traits:     cache.New(cfg.CacheCapacity, cfg.CacheTTL),
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}, service.Config{
		GenerationCost:   cfg.GenerationCost,
		PipelineDeadline: cfg.PipelineDeadline,
		FinalizeMargin:   cfg.FinalizeMargin,
		ImagePathPrefix:  cfg.StoragePrefix,
	}, log)

	verifier, err := authutils.NewJWTVerifier(cfg.JWTSecret, log)
	if err != nil {
		zap.L().Fatal("Failed to create JWT verifier", zap.Error(err))
	}

	illustrationHandler := handler.NewIllustrationHandler(svc, log)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(handler.RequestLogger(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	api := router.Group(cfg.BasePath)
	api.Use(handler.AuthMiddleware(verifier, log))
	illustrationHandler.RegisterRoutes(api)

	// Prometheus middleware регистрируется после роутов
	p.Use(router)

	// --- Start HTTP Server ---
	// WriteTimeout должен перекрывать бюджет пайплайна генерации.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PipelineDeadline + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.Port), zap.String("basePath", cfg.BasePath))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}
