// Package api exposes the signal engine over HTTP and websocket.
// Handlers read engine state through snapshot methods only; the
// evaluation loop never blocks on a slow client.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"index-signal-engine/internal/circuit"
	"index-signal-engine/internal/engine"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/scaling"
	"index-signal-engine/internal/selector"
)

// EngineAPI is the read surface the HTTP layer needs from the engine.
type EngineAPI interface {
	Status() engine.Status
	RecentDecisions(n int) []engine.TradeDecision
	LastSelection() *selector.Selection
	ScalingState(ctx context.Context, index string) (scaling.State, bool)
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string
}

// DefaultServerConfig listens on all interfaces with open CORS.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}
}

// Server serves engine state and streams events to websocket clients.
type Server struct {
	cfg        ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	engine     EngineAPI
	breaker    *circuit.Breaker
	hub        *Hub
	logger     zerolog.Logger
	started    time.Time
}

// NewServer wires routes and subscribes the websocket hub to the bus.
func NewServer(cfg ServerConfig, eng EngineAPI, breaker *circuit.Breaker, bus *events.Bus, logger zerolog.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	hub := NewHub(logger)
	go hub.Run()
	bus.SubscribeAll(hub.BroadcastEvent)

	s := &Server{
		cfg:     cfg,
		router:  router,
		engine:  eng,
		breaker: breaker,
		hub:     hub,
		logger:  logger.With().Str("component", "APIServer").Logger(),
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/decisions", s.handleDecisions)
		api.GET("/scaling/:index", s.handleScalingState)
		api.GET("/selection", s.handleSelection)
		api.POST("/breaker/trip", s.handleBreakerTrip)
		api.POST("/breaker/reset", s.handleBreakerReset)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
