// Package api serves the admin HTTP interface: record CRUD, batch
// import/export, analytics, the audit trail and a live status stream.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"refadmin/internal/audit"
	"refadmin/internal/cache"
	"refadmin/internal/config"
	"refadmin/internal/refdata"
	"refadmin/internal/warehouse"
)

// Server wires the HTTP routes to the domain services.
type Server struct {
	cfg       *config.Config
	store     *refdata.Store
	analytics *refdata.Analytics
	batch     *refdata.Batch
	audit     *audit.Store
	client    *warehouse.Client
	cache     *cache.Cache
	engine    *gin.Engine
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// NewServer builds the API server and registers all routes.
func NewServer(
	cfg *config.Config,
	store *refdata.Store,
	analytics *refdata.Analytics,
	batch *refdata.Batch,
	auditStore *audit.Store,
	client *warehouse.Client,
	c *cache.Cache,
) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		analytics: analytics,
		batch:     batch,
		audit:     auditStore,
		client:    client,
		cache:     c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), RequestLogger(), CORS())
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api", BearerAuth(s.cfg.Server.APIToken))

	api.GET("/records", s.handleListRecords)
	api.POST("/records", s.handleCreateRecord)
	api.GET("/records/:code", s.handleGetRecord)
	api.PUT("/records/:code", s.handleUpdateRecord)
	api.DELETE("/records/:code", s.handleDeleteRecord)

	api.POST("/import", s.handleImport)
	api.GET("/export", s.handleExport)

	api.GET("/analytics/summary", s.handleSummary)
	api.GET("/analytics/distribution/:column", s.handleDistribution)
	api.GET("/analytics/describe/:column", s.handleDescribe)

	api.GET("/audit", s.handleAuditRecent)
	api.GET("/audit/stats", s.handleAuditStats)

	api.GET("/connection/test", s.handleConnectionTest)
	api.GET("/status", s.handleStatus)
	api.GET("/status/stream", s.handleStatusStream)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer builds the http.Server for the API with the configured
// timeouts. The caller owns its lifecycle.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.ListenAddr, s.cfg.Server.ListenPort),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}
