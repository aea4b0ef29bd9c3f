package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetHealth handles GET /health.
func (s *Server) GetHealth(c *gin.Context) {
	checks := map[string]string{"runtime": s.runtime}
	status := "ok"
	httpStatus := http.StatusOK

	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			checks["database"] = "error"
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	instances := make(map[string]int, len(s.types))
	for t, n := range s.instances.Counts(s.types) {
		instances[string(t)] = n
	}

	body := gin.H{
		"status":         status,
		"checks":         checks,
		"instances":      instances,
		"active_sfcs":    s.chains.Stats().Active,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.workers != nil {
		body["workers"] = s.workers.Metrics()
	}
	c.JSON(httpStatus, body)
}
