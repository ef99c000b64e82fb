// Package api exposes the agent's HTTP control surface: status, start/stop,
// config echo, Prometheus metrics, and an embedded status page.
package api

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/engine"
)

//go:embed static
var staticFiles embed.FS

// Server wraps the HTTP listener around the engine.
type Server struct {
	engine *engine.Engine
	http   *http.Server
}

// NewServer builds the server on the given port.
func NewServer(eng *engine.Engine, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		engine: eng,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.POST("/start", s.handleStart)
		apiGroup.POST("/stop", s.handleStop)
		apiGroup.GET("/config", s.handleConfig)
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	static, err := fs.Sub(staticFiles, "static")
	if err == nil {
		router.StaticFileFS("/", "index.html", http.FS(static))
	}

	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.WithField("addr", s.http.Addr).Info("Control surface listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.engine.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": s.engine.Running()})
}

func (s *Server) handleStop(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"running": s.engine.Running()})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status().Config)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.engine.Running(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
