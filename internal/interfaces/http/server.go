// Package http is the thin presentation boundary over the orchestrator
// (spec §6 "CLI front-ends ... out of scope" — only the HTTP/WS surface is
// specified). It is grounded on internal/interfaces/http/server.go's
// gin-plus-middleware shape, retargeted from message/OpenAI-compatible
// routing to session/generate/tool endpoints over the agent orchestrator.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/application/orchestrator"
	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// Config configures the listener address and gin mode.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// Server is the HTTP boundary: it parses/serializes requests and delegates
// every decision to the orchestrator.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// StreamHandler is the boundary's websocket upgrade endpoint, implemented by
// internal/interfaces/websocket.Handler.
type StreamHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// NewServer builds the router and wraps it in an *http.Server, not yet
// listening (call Start). ws may be nil to disable the streaming endpoint.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, ws StreamHandler, logger *zap.Logger) *Server {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(logger))

	registerRoutes(router, orch)
	if ws != nil {
		router.GET("/v1/stream", gin.WrapF(ws.ServeWS))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start begins serving in the background. Bind errors surface on the
// logger since ListenAndServe blocks inside its own goroutine.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the listener down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

func registerRoutes(router *gin.Engine, orch *orchestrator.Orchestrator) {
	router.GET("/health", func(c *gin.Context) {
		status := orch.Health()
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"healthy":         status.Healthy,
			"model_loaded":    status.ModelLoaded,
			"queue_size":      status.QueueSize,
			"active_sessions": status.ActiveSessions,
			"uptime_seconds":  status.Uptime.Seconds(),
		})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/sessions", func(c *gin.Context) { createSession(c, orch) })
		v1.GET("/sessions/:id", func(c *gin.Context) { getSession(c, orch) })
		v1.POST("/sessions/:id/messages", func(c *gin.Context) { addMessage(c, orch) })
		v1.POST("/sessions/:id/tools/discover", func(c *gin.Context) { discoverTools(c, orch) })
		v1.POST("/generate", func(c *gin.Context) { generate(c, orch) })
	}
}

func createSession(c *gin.Context, orch *orchestrator.Orchestrator) {
	session, err := orch.CreateSession()
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": session.ID})
}

func getSession(c *gin.Context, orch *orchestrator.Orchestrator) {
	session, err := orch.GetSession(entity.SessionID(c.Param("id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type addMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func addMessage(c *gin.Context, orch *orchestrator.Orchestrator) {
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := entity.SessionID(c.Param("id"))
	msg := entity.NewMessage(entity.Role(req.Role), req.Content)
	if err := orch.AddMessage(id, msg); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func discoverTools(c *gin.Context, orch *orchestrator.Orchestrator) {
	tools, err := orch.DiscoverTools(c.Request.Context(), entity.SessionID(c.Param("id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

type generateRequest struct {
	SessionID   string   `json:"session_id" binding:"required"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	StopTokens  []string `json:"stop_tokens"`
}

func generate(c *gin.Context, orch *orchestrator.Orchestrator) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := orch.Generate(c.Request.Context(), entity.GenerationRequest{
		SessionID:   entity.SessionID(req.SessionID),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopTokens:  req.StopTokens,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func respondErr(c *gin.Context, err error) {
	switch {
	case pkgerrors.IsNotFound(err), pkgerrors.IsSessionNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case pkgerrors.IsInvalidInput(err), pkgerrors.IsSecurityViolation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case pkgerrors.IsQueueFull(err):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case pkgerrors.IsQueueTimeout(err):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
