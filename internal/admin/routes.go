package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": s.name,
			"version":   "0.0.1",
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		status := s.pool.Status()
		ready := !status.Closed && status.Idle+status.Busy > 0
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":     ready,
			"uptime":    time.Since(s.appeared).String(),
			"component": s.name,
			"version":   "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/pool", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.pool.Status())
	})

	s.router.GET("/pool/workers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"workers": s.pool.Workers(),
		})
	})

	s.router.GET("/pool/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": s.pool.Sessions(),
		})
	})

	s.router.DELETE("/pool/sessions/:session", func(c *gin.Context) {
		s.pool.ReleaseSession(c.Param("session"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
