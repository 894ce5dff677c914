package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type probe struct {
	name  string
	check func(ctx context.Context) error
}

type SystemHandler struct {
	probes []probe
}

func NewSystemHandler(db Store, minio ObjectStore, producer ControlPublisher) *SystemHandler {
	return &SystemHandler{probes: []probe{
		{"postgres", db.Ping},
		{"minio", minio.Ping},
		{"nats", func(context.Context) error { return producer.Ping() }},
	}}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports 503 until every backing service answers.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	ready := true
	for _, p := range h.probes {
		if err := p.check(ctx); err != nil {
			checks[p.name] = err.Error()
			ready = false
			continue
		}
		checks[p.name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
