package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/streamkit/component"
)

var startTime = time.Now()

// RegisterDefaultEndpoints mounts the /health and /info system
// endpoints. Health aggregates every registered component; overall
// status degrades to the worst component.
func (s *Server) RegisterDefaultEndpoints(serviceName string, registry *component.Registry) {
	s.engine.GET("/health", healthEndpoint(serviceName, registry))
	s.engine.GET("/info", infoEndpoint(serviceName))
}

func healthEndpoint(serviceName string, registry *component.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		components := registry.HealthAll(c.Request.Context())

		overall := component.StatusHealthy
		for _, h := range components {
			if h.Status == component.StatusUnhealthy {
				overall = component.StatusUnhealthy
				break
			}
			if h.Status == component.StatusDegraded {
				overall = component.StatusDegraded
			}
		}

		status := http.StatusOK
		if overall == component.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"service":    serviceName,
			"status":     overall,
			"components": components,
		})
	}
}

func infoEndpoint(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"uptime":  time.Since(startTime).String(),
		})
	}
}
