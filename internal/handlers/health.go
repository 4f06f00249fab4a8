package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the process's dependencies.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.MessageHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.MessageHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := 200

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = 503
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	streamClients := 0
	if h.hub != nil {
		streamClients = h.hub.ClientCount()
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "projecthub",
		"components": gin.H{
			"database":       dbStatus,
			"queue_mode":     queueMode,
			"stream_clients": streamClients,
		},
	})
}
