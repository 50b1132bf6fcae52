package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/fencing-cv/server/analysis"
	"github.com/san-kum/fencing-cv/server/annotate"
	"github.com/san-kum/fencing-cv/server/cache"
	"github.com/san-kum/fencing-cv/server/config"
	"github.com/san-kum/fencing-cv/server/handlers"
	"github.com/san-kum/fencing-cv/server/middleware"
	"github.com/san-kum/fencing-cv/server/ml"
	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/processor"
	"github.com/san-kum/fencing-cv/server/render"
	"github.com/san-kum/fencing-cv/server/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	processor   *processor.AnalysisProcessor
	mlClient    *ml.Client
	cache       cache.Cache
	store       *store.Store
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func main() {
	cfg := config.LoadConfig()

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("default_pose_type", cfg.Processor.DefaultPoseType))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	server.Close()

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	return zapConfig.Build()
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	defaultPose, err := pose.ParseStance(cfg.Processor.DefaultPoseType)
	if err != nil {
		return nil, err
	}

	cacheInstance := cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.TTL, logger)

	mlClient, err := ml.NewClient(cfg.ML.BaseURL, &ml.ClientConfig{
		Timeout:             cfg.ML.Timeout,
		MaxRetries:          cfg.ML.MaxRetries,
		RetryDelay:          cfg.ML.RetryDelay,
		HealthCheckInterval: cfg.ML.HealthCheckInterval,
		JPEGQuality:         cfg.Processor.JPEGQuality,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ML client: %w", err)
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load annotation font: %w", err)
	}

	var (
		historyStore  *store.Store
		historyWriter processor.History
		historyReader handlers.HistoryReader
	)
	if cfg.Database.Path != "" {
		historyStore, err = store.Open(cfg.Database.Path, logger)
		if err != nil {
			mlClient.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		historyWriter = historyStore
		historyReader = historyStore
	} else {
		logger.Info("Analysis history disabled")
	}

	orchestrator := analysis.NewOrchestrator(mlClient, annotate.Options{
		OverlayFeedback: cfg.Processor.OverlayFeedback,
	})

	analysisProcessor := processor.NewAnalysisProcessor(orchestrator, renderer, cacheInstance, historyWriter, &processor.ProcessorConfig{
		MaxQueueSize:      cfg.Processor.QueueSize,
		MaxWorkers:        cfg.Processor.Workers,
		ProcessingTimeout: cfg.Processor.ProcessingTimeout,
		JPEGQuality:       cfg.Processor.JPEGQuality,
	}, logger)

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JWTSecretKey, logger)

	router := gin.New()

	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))
	router.Use(middleware.InputValidation())
	router.Use(middleware.TimeoutHandler(cfg.Security.RequestTimeout))

	wsHandler := handlers.NewWebSocketHandler(analysisProcessor, defaultPose, logger)
	analyzeHandler := handlers.NewAnalyzeHandler(analysisProcessor, historyReader, defaultPose, logger)

	setupRoutes(router, wsHandler, analyzeHandler, mlClient, authMiddleware, rateLimiter)

	return &Server{
		router:      router,
		logger:      logger,
		processor:   analysisProcessor,
		mlClient:    mlClient,
		cache:       cacheInstance,
		store:       historyStore,
		rateLimiter: rateLimiter,
		config:      cfg,
	}, nil
}

func setupRoutes(router *gin.Engine, wsHandler *handlers.WebSocketHandler, analyzeHandler *handlers.AnalyzeHandler, mlClient *ml.Client, auth *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter) {
	router.GET("/health", middleware.HealthCheck())

	// Form upload kept at the root for browser forms.
	router.POST("/analyze", rateLimiter.RateLimit(), auth.OptionalAuth(), analyzeHandler.Analyze)

	router.GET("/ws", rateLimiter.RateLimit(), wsHandler.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		api.GET("/health", middleware.HealthCheck())

		limited := api.Group("/")
		limited.Use(rateLimiter.RateLimit(), auth.OptionalAuth())
		{
			limited.POST("/analyze", analyzeHandler.Analyze)
			limited.POST("/analyze-frame", analyzeHandler.AnalyzeFrame)
			limited.GET("/analyses", analyzeHandler.ListAnalyses)
			limited.GET("/analyses/:id", analyzeHandler.GetAnalysis)
			limited.GET("/stats", analyzeHandler.GetStats)
		}

		admin := api.Group("/admin")
		admin.Use(auth.RequireAuth())
		admin.Use(auth.RequireRole("admin"))
		{
			admin.GET("/stats", analyzeHandler.GetStats)
			admin.GET("/cache-stats", analyzeHandler.GetCacheStats)
			admin.GET("/rate-limit-stats", func(c *gin.Context) {
				c.JSON(http.StatusOK, rateLimiter.GetGlobalStats())
			})
			admin.GET("/model-info", func(c *gin.Context) {
				info, err := mlClient.GetModelInfo(c.Request.Context())
				if err != nil {
					c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "Pose service unavailable"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"success": true, "model": info})
			})
		}
	}
}

// Close releases everything NewServer started, in dependency order.
func (s *Server) Close() {
	if err := s.processor.Shutdown(); err != nil {
		s.logger.Error("Failed to shutdown analysis processor", zap.Error(err))
	}

	s.mlClient.Close()
	s.rateLimiter.Shutdown()

	if err := s.cache.Close(); err != nil {
		s.logger.Error("Failed to close cache", zap.Error(err))
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Failed to close history database", zap.Error(err))
		}
	}
}
