package ops

import (
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/whale-classifier/internal/registry"
	"github.com/rawblock/whale-classifier/internal/sink"
)

// HealthChecker reports whether a supervised source is currently healthy.
type HealthChecker interface {
	Name() string
	Healthy() bool
}

// Handler serves the operational surface over the pipeline's read-only
// collaborators.
type Handler struct {
	registry *registry.Registry
	dlq      *sink.DeadLetterQueue
	sentiment *sink.SentimentCounters
	sources  []HealthChecker
	startedAt time.Time
}

// SetupRouter builds the gin router: CORS, rate limiting, /healthz,
// /stats, /deadletters, and the live /ws feed.
func SetupRouter(reg *registry.Registry, dlq *sink.DeadLetterQueue, sentiment *sink.SentimentCounters, hub *Hub, sources []HealthChecker) *gin.Engine {
	r := gin.Default()

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
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	limiter := NewRateLimiter(120, 30)
	r.Use(limiter.Middleware())

	h := &Handler{registry: reg, dlq: dlq, sentiment: sentiment, sources: sources, startedAt: time.Now()}

	r.GET("/healthz", h.healthz)
	r.GET("/stats", h.stats)
	r.GET("/stats/:whale", h.whaleStats)
	r.GET("/deadletters", h.deadLetters)
	r.GET("/sentiment/:token", h.sentimentSnapshot)
	r.GET("/ws", hub.Subscribe)

	return r
}

func (h *Handler) healthz(c *gin.Context) {
	status := "ok"
	sourceStatus := make(map[string]bool, len(h.sources))
	for _, s := range h.sources {
		healthy := s.Healthy()
		sourceStatus[s.Name()] = healthy
		if !healthy {
			status = "degraded"
		}
	}
	c.JSON(200, gin.H{
		"status":       status,
		"uptime_secs":  time.Since(h.startedAt).Seconds(),
		"sources":      sourceStatus,
		"dead_letters": h.dlq.Len(),
	})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(200, gin.H{
		"dead_letters": h.dlq.Len(),
		"uptime_secs":  time.Since(h.startedAt).Seconds(),
	})
}

func (h *Handler) whaleStats(c *gin.Context) {
	addr := c.Param("whale")
	stats, ok := h.registry.Lookup(addr)
	if !ok {
		c.JSON(404, gin.H{"error": "whale not found"})
		return
	}
	c.JSON(200, stats)
}

func (h *Handler) deadLetters(c *gin.Context) {
	c.JSON(200, h.dlq.List())
}

func (h *Handler) sentimentSnapshot(c *gin.Context) {
	token := c.Param("token")
	buy, sell, count := h.sentiment.Snapshot(token)
	c.JSON(200, gin.H{
		"token":    token,
		"buy_usd":  buy,
		"sell_usd": sell,
		"events":   count,
	})
}
