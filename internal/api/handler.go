// Package api is the HTTP surface of the bot: the TradingView webhook,
// the read-only state endpoints, the admin control plane and the
// websocket state stream.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"okx-signal-bot/internal/engine"
	"okx-signal-bot/internal/events"
	"okx-signal-bot/pkg/config"
)

// Server wires HTTP endpoints around the engine.
type Server struct {
	Router *gin.Engine

	engine engine.Service
	cfg    *config.Store
	bus    *events.Bus
	log    *zap.Logger
}

// NewServer builds the router with the full middleware chain. The
// caller owns the listener; Router is a plain http.Handler.
func NewServer(svc engine.Service, cfg *config.Store, bus *events.Bus, log *zap.Logger) *Server {
	if !cfg.Current().Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware(log))
	r.Use(CORSMiddleware())

	s := &Server{
		Router: r,
		engine: svc,
		cfg:    cfg,
		bus:    bus,
		log:    log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/state", s.getState)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.Router.POST("/webhook/tradingview", s.webhook)
	s.Router.POST("/auth/token", s.issueToken)
	s.Router.GET("/ws/state", s.stateStream)

	control := s.Router.Group("/control")
	control.Use(s.adminAuth())
	{
		control.POST("/pause", s.setPause)
		control.POST("/close_only", s.setCloseOnly)
		control.POST("/emergency_close", s.emergencyClose)
		control.POST("/emergency_close_all", s.emergencyCloseAll)
		control.POST("/reconcile", s.runReconcile)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "ts": time.Now().Unix()})
}
