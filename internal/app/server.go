// File: internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"identity_backend/internal/auth"
	"identity_backend/internal/common"
	"identity_backend/internal/config"
	"identity_backend/internal/jobs"
	"identity_backend/internal/middleware"
	"identity_backend/internal/user"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server struct holds the dependencies for the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	cfg        *config.Config
	logger     *zap.Logger

	// Handlers
	authHandler *auth.Handler
	userHandler *user.Handler

	// Jobs
	hygieneSweeper *jobs.HygieneSweeper

	// Middleware instances
	sessionMW gin.HandlerFunc
	adminMW   gin.HandlerFunc
}

// NewServer creates a new instance of our application server.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	authHandler *auth.Handler,
	userHandler *user.Handler,
	gate *auth.Gate,
	hygieneSweeper *jobs.HygieneSweeper,
	db *gorm.DB,
) (*Server, error) {
	if err := db.AutoMigrate(&user.User{}); err != nil {
		return nil, fmt.Errorf("auto-migrate failed: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// --- Global Middleware ---
	router.Use(middleware.ZapLogger(logger, cfg))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(gin.Recovery())

	// CORS Middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.ExposeHeaders = []string{"Content-Length", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	// Create middleware instances. The session middleware accepts any valid
	// session regardless of verification state; profile reads should not be
	// blocked on a pending verification email. The admin middleware demands
	// both the admin role and a verified address.
	sessionMW := middleware.RequireAccess(gate, logger, "", false)
	adminMW := middleware.RequireAccess(gate, logger, common.RoleAdmin, true)

	// --- Setup Routes ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "Identity API is healthy!"})
	})

	v1 := router.Group("/api/v1")

	authHandler.RegisterRoutes(v1)
	userHandler.RegisterRoutes(v1, sessionMW)

	// Admin-only surface: trigger the hygiene sweep outside its schedule.
	admin := v1.Group("/admin", adminMW)
	admin.POST("/hygiene-sweep", func(c *gin.Context) {
		deleted, err := hygieneSweeper.RunSweep(c.Request.Context())
		if err != nil {
			common.RespondWithError(c, err)
			return
		}
		common.RespondOK(c, "Hygiene sweep completed.", gin.H{"identities_purged": deleted})
	})

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:     httpServer,
		router:         router,
		cfg:            cfg,
		logger:         logger,
		authHandler:    authHandler,
		userHandler:    userHandler,
		hygieneSweeper: hygieneSweeper,
		sessionMW:      sessionMW,
		adminMW:        adminMW,
	}, nil
}

func (s *Server) Start() error {
	if s.hygieneSweeper != nil {
		if err := s.hygieneSweeper.SetupAndStart(); err != nil {
			s.logger.Error("Failed to setup and start hygiene sweeper", zap.Error(err))
		}
	} else {
		s.logger.Info("Hygiene sweeper is not configured, skipping start.")
	}

	s.logger.Info("HTTP Server starting",
		zap.String("address", s.httpServer.Addr),
		zap.String("gin_mode", s.cfg.GinMode),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Failed to start HTTP server", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP Server stopped gracefully or an error occurred")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Attempting graceful server shutdown...")
	if s.hygieneSweeper != nil {
		s.hygieneSweeper.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}
