// Package api implements the gateway's internal /ai/v1/* API — the
// gin-routed administrative surface the delivery worker calls into, plus
// the public /health and /metrics endpoints — matching the teacher's split
// between a mux-routed public surface and a gin-routed administrative one.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/middleware"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/models"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/observability"
)

// AIProcessor is the subset of processor.Processor the API needs.
type AIProcessor interface {
	Process(ctx context.Context, message, conversationID, userID string) models.ProcessingResult
}

// Server wires the gin router for the internal AI API and health/metrics
// endpoints.
type Server struct {
	engine  *gin.Engine
	proc    AIProcessor
	health  *HealthChecker
	logger  observability.Logger
}

// New creates a Server. apiKey guards /ai/v1/* and /metrics.
func New(proc AIProcessor, health *HealthChecker, apiKey string, logger observability.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, proc: proc, health: health, logger: logger.WithPrefix("api-server")}

	engine.GET("/health", s.handleHealth)

	guarded := engine.Group("/")
	guarded.Use(middleware.APIKeyAuth(apiKey))
	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/ai/v1")
	v1.Use(middleware.APIKeyAuth(apiKey))
	v1.POST("/process", s.handleProcess)
	v1.POST("/feedback", s.handleFeedback)

	return s
}

// Handler returns the underlying http.Handler for use with an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	healthy, deps := s.health.Check(c.Request.Context())
	status := http.StatusOK
	statusText := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "degraded"
	}
	c.JSON(status, gin.H{"status": statusText, "dependencies": deps})
}

type processRequest struct {
	ConversationID string `json:"conv_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	Platform       string `json:"platform"`
	Lang           string `json:"lang"`
	UserID         string `json:"user_id"`
}

func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result := s.proc.Process(c.Request.Context(), req.Message, req.ConversationID, req.UserID)

	switch result.Error {
	case "":
		c.JSON(http.StatusOK, gin.H{"response": result.Response, "status": "ok", "timestamp": time.Now().UTC()})
	case "rate_limited":
		c.JSON(http.StatusTooManyRequests, gin.H{"error": result.Error, "response": result.Response})
	case "service_unavailable":
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": result.Error, "response": result.Response})
	case "empty_message":
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Error, "response": result.Response})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error, "response": result.Response})
	}
}

type feedbackRequest struct {
	ConversationID string `json:"conv_id" binding:"required"`
	Rating         int    `json:"rating" binding:"required,min=1,max=5"`
	Comment        string `json:"comment"`
}

// handleFeedback records customer feedback. The gateway has no feedback
// store of its own yet; this endpoint validates and logs it so a future
// store can be wired in without changing the contract.
func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.logger.Info("feedback received", map[string]interface{}{
		"conversation_id": req.ConversationID,
		"rating":          req.Rating,
	})

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
