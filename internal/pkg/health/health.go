// Package health exposes liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Pinger is an extra dependency checked by readiness, e.g. Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves /health and /ready.
type Handler struct {
	db      *gorm.DB
	service string
	checks  map[string]Pinger
}

// NewHandler creates a Handler.
func NewHandler(db *gorm.DB, service string) *Handler {
	return &Handler{db: db, service: service, checks: map[string]Pinger{}}
}

// AddCheck registers an extra readiness dependency.
func (h *Handler) AddCheck(name string, p Pinger) {
	h.checks[name] = p
}

// RegisterRoutes registers the health routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
}

// Health always reports ok while the process serves requests.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": h.service})
}

// Ready checks the database and registered dependencies.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{}
	ready := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	status["database"] = errString(err)
	ready = ready && err == nil

	for name, p := range h.checks {
		err := p.Ping(ctx)
		status[name] = errString(err)
		ready = ready && err == nil
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"service": h.service, "ready": ready, "checks": status})
}

func errString(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
