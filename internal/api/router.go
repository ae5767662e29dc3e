package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/derekprior/hoops/internal/manager"
	"github.com/derekprior/hoops/internal/schedule"
	"github.com/derekprior/hoops/internal/store"
)

// Service is the schedule workflow behind the HTTP surface. *manager.Manager
// satisfies it.
type Service interface {
	Calculator() *schedule.Calculator
	Teams(ctx context.Context) ([]store.Team, error)
	Games(ctx context.Context) ([]store.Game, error)
	CreateGame(ctx context.Context, in manager.GameInput) (store.Game, error)
	BulkGenerate(ctx context.Context, seed *int64) (*manager.GenerateResult, error)
	DeleteGame(ctx context.Context, id uuid.UUID) error
}

// NewRouter wires the API routes. An empty origins list allows any origin.
func NewRouter(svc Service, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	r.Use(cors.New(corsCfg))

	h := &Handler{svc: svc}
	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	{
		api.GET("/teams", h.Teams)
		api.GET("/windows", h.Windows)
		api.GET("/windows/:game", h.Window)
		api.GET("/games", h.Games)
		api.POST("/games", h.CreateGame)
		api.POST("/games/generate", h.Generate)
		api.DELETE("/games/:id", h.DeleteGame)
	}
	return r
}

// requestLogger logs each request once it completes.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.ByType(gin.ErrorTypePrivate).String())
		}
		event.
			Int("status", status).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("Request completed")
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
