package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/config"
	"github.com/mapadna/oracle-funnel-go/internal/constants"
	"github.com/mapadna/oracle-funnel-go/internal/funnel"
	"github.com/mapadna/oracle-funnel-go/internal/oracle"
	"github.com/mapadna/oracle-funnel-go/internal/ratelimit"
	"github.com/mapadna/oracle-funnel-go/internal/webhook"
)

// Server exposes the funnel API over HTTP.
type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger

	pipeline   *oracle.Pipeline
	limiter    *ratelimit.Limiter
	dispatcher *webhook.Dispatcher
	sessions   *funnel.Store
}

func New(cfg *config.Config, pipeline *oracle.Pipeline, limiter *ratelimit.Limiter, dispatcher *webhook.Dispatcher, sessions *funnel.Store, logger *zap.Logger) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:        cfg,
		engine:     engine,
		logger:     logger,
		pipeline:   pipeline,
		limiter:    limiter,
		dispatcher: dispatcher,
		sessions:   sessions,
	}

	engine.Use(s.requestLogger())
	engine.Use(cors.New(s.corsConfig()))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  constants.ServerConfig.ReadTimeout,
		WriteTimeout: constants.ServerConfig.WriteTimeout,
		IdleTimeout:  constants.ServerConfig.IdleTimeout,
	}

	return s
}

func (s *Server) corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	if s.cfg.Server.AllowedOrigin != "" {
		corsConfig.AllowOrigins = []string{s.cfg.Server.AllowedOrigin}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Session-ID"}
	corsConfig.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
	return corsConfig
}

func (s *Server) setupRoutes() {
	// Container-level healthcheck hits the bare path.
	s.engine.GET("/health", s.handleHealthPlain)

	api := s.engine.Group("/api")

	api.GET("/health", s.handleHealth)

	oracleGroup := api.Group("/oracle")
	oracleGroup.POST("/generate", s.rateLimitMiddleware(), s.handleGenerate)

	rl := api.Group("/rate-limit")
	rl.GET("/status", s.handleRateLimitStatus)
	if s.cfg.Server.DebugEndpoints {
		rl.POST("/reset", s.handleRateLimitReset)
	}

	api.POST("/webhook/send", s.handleWebhookProxy)

	sessions := api.Group("/funnel/session")
	{
		sessions.POST("", s.handleSessionCreate)
		sessions.GET("/:id", s.handleSessionGet)
		sessions.POST("/:id/answers", s.handleSessionAnswers)
		sessions.POST("/:id/advance", s.handleSessionAdvance)
		sessions.POST("/:id/payment-click", s.handleSessionPaymentClick)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting",
		zap.String("addr", s.httpServer.Addr),
		zap.String("environment", s.cfg.Server.Environment),
		zap.Bool("rate_limit", s.limiter.Enabled()),
		zap.Bool("offline", s.pipeline.Offline()),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
