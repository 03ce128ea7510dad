package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/api/websocket"
	"github.com/KevinKickass/OpenBeamCore/internal/auth"
	"github.com/KevinKickass/OpenBeamCore/internal/config"
	"github.com/KevinKickass/OpenBeamCore/internal/interfaces"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
	metrics     *observability.Metrics
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService, metrics *observability.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		metrics:     metrics,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())
	s.router.Use(s.metrics.GinMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ====================
		v1.POST("/auth/login", s.login)

		api := v1.Group("")
		api.Use(s.authService.AuthMiddleware())

		api.GET("/auth/me", s.getCurrentUser)

		// ==================== SYSTEM (READ) ====================
		api.GET("/status", auth.RequirePermission(auth.PermRead), s.getSystemStatus)
		api.GET("/channels", auth.RequirePermission(auth.PermRead), s.listChannels)

		// ==================== ENERGY (PHYSICIST) ====================
		api.GET("/energy", auth.RequirePermission(auth.PermRead), s.getEnergy)
		api.PUT("/energy", auth.RequirePermission(auth.PermPhysics), s.setEnergy)

		// ==================== PEERS ====================
		peers := api.Group("/peers/:peer")
		{
			peers.GET("/elements", auth.RequirePermission(auth.PermRead), s.listElements)
			peers.GET("/targets/:target/:quantity", auth.RequirePermission(auth.PermRead), s.readTarget)
			peers.GET("/targets/:target/:quantity/readback", auth.RequirePermission(auth.PermRead), s.readbackTarget)
			// Permission depends on the peer, see writePermission.
			peers.PUT("/targets/:target/:quantity", s.writePermission(), s.writeTarget)
		}

		// ==================== SNAPSHOTS ====================
		snapshots := api.Group("/snapshots")
		snapshots.Use(s.requireSnapshots)
		{
			snapshots.GET("", auth.RequirePermission(auth.PermRead), s.listSnapshots)
			snapshots.GET("/:id", auth.RequirePermission(auth.PermRead), s.getSnapshot)
			snapshots.POST("", auth.RequirePermission(auth.PermOperate), s.createSnapshot)
			snapshots.POST("/:id/restore", auth.RequirePermission(auth.PermOperate), s.restoreSnapshot)
			snapshots.DELETE("/:id", auth.RequirePermission(auth.PermOperate), s.deleteSnapshot)
		}

		// ==================== WEBSOCKET ====================
		api.GET("/ws/live", auth.RequirePermission(auth.PermRead), s.wsLiveConnection)
		api.GET("/ws/status", auth.RequirePermission(auth.PermRead), s.wsStatus)
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, auth.Username(c), c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
