package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ai-subtitler/internal/api/middleware"
	"ai-subtitler/internal/api/v1/dto"
	"ai-subtitler/internal/api/v1/handlers"
	v1routes "ai-subtitler/internal/api/v1/routes"
	"ai-subtitler/internal/api/v1/services"
	"ai-subtitler/internal/app/common"
)

// Config represents API server configuration
type Config struct {
	Addr              string
	Environment       string
	AllowedOrigins    []string
	MaxUploadBytes    int64
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// Dependencies are the services behind the routes. Metrics may be nil.
type Dependencies struct {
	Jobs    services.JobService
	Files   services.FileService
	Health  services.HealthService
	Metrics http.Handler
}

// Server represents the API server
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	errs       chan error
	logger     *zap.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Dependencies, logger *zap.Logger) *Server {
	logger = common.OrNop(logger)

	switch config.Environment {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = 10 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 2 * time.Minute
	}
	if err := dto.RegisterValidators(); err != nil {
		logger.Error("Failed to register request validators", zap.Error(err))
	}

	router := gin.New()
	router.MaxMultipartMemory = 32 << 20

	cors := middleware.DefaultCORSConfig()
	if len(config.AllowedOrigins) > 0 {
		cors.AllowOrigins = config.AllowedOrigins
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogging(logger))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.CORS(cors))

	if deps.Health != nil {
		router.GET("/health", handlers.NewHealthHandler(deps.Health).Get)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		v1routes.RegisterRoutes(v1, &v1routes.ServiceContainer{
			JobService:     deps.Jobs,
			FileService:    deps.Files,
			MaxUploadBytes: config.MaxUploadBytes,
		})
	}

	// uploads are streamed, so only the header read is bounded
	httpServer := &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return &Server{
		config:     config,
		router:     router,
		httpServer: httpServer,
		errs:       make(chan error, 1),
		logger:     logger,
	}
}

// Start starts listening in the background. Listener failures are reported on Errors.
func (s *Server) Start() error {
	s.logger.Info("Starting API server",
		zap.String("address", s.config.Addr),
		zap.String("environment", s.config.Environment),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped unexpectedly", zap.Error(err))
			s.errs <- err
		}
		close(s.errs)
	}()

	return nil
}

// Errors yields a listener failure and is closed once the server stops.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("API server shutdown complete")
	return nil
}

// Router returns the Gin router (useful for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
