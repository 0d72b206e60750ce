package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/internal/session"
	"github.com/rawblock/geoshield-engine/internal/vpn"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

// Health probes the handler uses for the health endpoint.
type Health struct {
	VectorStore func(ctx context.Context) bool
	Generator   string
	Providers   []string
}

type APIHandler struct {
	log          *slog.Logger
	orchestrator *session.Orchestrator
	aggregator   *vpn.Aggregator
	thresholds   *config.Registry
	wsHub        *Hub
	health       Health
}

// SetupRouter builds the gin engine with CORS, auth and rate limiting.
func SetupRouter(log *slog.Logger, orch *session.Orchestrator, agg *vpn.Aggregator,
	thresholds *config.Registry, wsHub *Hub, health Health) *gin.Engine {

	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS (comma-separated). Empty
	// or "*" allows everything, which is only sane behind a gateway.
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		log:          log,
		orchestrator: orch,
		aggregator:   agg,
		thresholds:   thresholds,
		wsHub:        wsHub,
		health:       health,
	}

	limiter := NewRateLimiter(60, 10)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)

		protected := api.Group("")
		protected.Use(AuthMiddleware(log))
		{
			protected.POST("/verify", handler.handleVerify)
			protected.GET("/check-ip/:ip", handler.handleCheckIP)
			protected.GET("/thresholds", handler.handleGetThresholds)
			protected.PUT("/thresholds", handler.handlePutThresholds)
		}
	}

	return r
}

// handleVerify is the single verification entry point.
// POST /api/v1/verify?mode=full
func (h *APIHandler) handleVerify(c *gin.Context) {
	var req session.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	req.ClientIP = c.ClientIP()
	req.Mode = session.ModeLite
	if c.Query("mode") == "full" {
		req.Mode = session.ModeFull
	}

	verdict, err := h.orchestrator.Verify(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, session.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, verdict)
}

// handleCheckIP exposes the aggregator directly.
// GET /api/v1/check-ip/8.8.8.8
func (h *APIHandler) handleCheckIP(c *gin.Context) {
	ip := c.Param("ip")
	result := h.aggregator.Detect(c.Request.Context(), ip)
	if result.Details.Error == "Invalid IP address" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid IP address"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) handleGetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, h.thresholds.Get())
}

// handlePutThresholds hot-replaces the threshold snapshot. Missing keys
// fall back to the built-in defaults, same as file loading.
func (h *APIHandler) handlePutThresholds(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	snapshot := config.Defaults()
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid threshold document", "details": err.Error()})
		return
	}

	h.thresholds.Replace(snapshot)
	c.JSON(http.StatusOK, gin.H{"status": "replaced", "thresholds": h.thresholds.Get()})
}

// handleHealth reports engine status and configured capabilities.
func (h *APIHandler) handleHealth(c *gin.Context) {
	vectorReady := false
	if h.health.VectorStore != nil {
		vectorReady = h.health.VectorStore(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "GeoShield Verification Engine v1.0",
		"capabilities": gin.H{
			"providers":       h.health.Providers,
			"vectorStore":     vectorReady,
			"generativeModel": h.health.Generator,
			"patternAnalysis": vectorReady,
			"liveAlertStream": true,
		},
	})
}

// BroadcastVerdictAlert returns the orchestrator callback that pushes
// high-risk verdicts to websocket subscribers.
func BroadcastVerdictAlert(log *slog.Logger, wsHub *Hub) func(*models.Verdict) {
	return func(v *models.Verdict) {
		if v.Status != models.StatusLikelySpoofed && (v.Risk == nil || v.Risk.Tier != models.TierHigh) {
			return
		}
		payload := gin.H{
			"type":    "spoofing_alert",
			"verdict": v,
		}
		alertBytes, err := json.Marshal(payload)
		if err != nil {
			return
		}
		wsHub.Broadcast(alertBytes)
		log.Info("spoofing alert broadcast",
			"status", v.Status, "locationScore", v.LocationScore, "environmentKind", v.EnvironmentKind)
	}
}
