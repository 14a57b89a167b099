// Package api serves the HTTP surface: health, metrics, the media-request
// passthrough, listings and maintenance controls.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/maintenance/batch"
	"github.com/vietddude/librarian/internal/maintenance/health"
)

// RequestService is the media-request client.
type RequestService interface {
	Status(ctx context.Context) (string, error)
	Search(ctx context.Context, query string, page int) (json.RawMessage, error)
	Details(ctx context.Context, mediaType string, mediaID int) (json.RawMessage, error)
	Submit(ctx context.Context, userID, mediaType string, mediaID int) (json.RawMessage, error)
}

// ListingsService is the listings provider client.
type ListingsService interface {
	GetAvailableCountries(ctx context.Context) ([]byte, error)
	FetchImage(ctx context.Context, uri string) ([]byte, error)
	IsImageDailyLimitActive() bool
	ImageLimitResetsAt() time.Time
}

// MaintenanceService starts and reports maintenance runs.
type MaintenanceService interface {
	Trigger(ctx context.Context) (string, error)
	Status() batch.Status
	History(ctx context.Context, limit int) ([]*domain.Run, error)
}

// HealthChecker builds health reports.
type HealthChecker interface {
	CheckHealth(ctx context.Context) health.HealthReport
}

// Deps are the services behind the routes.
type Deps struct {
	Requests    RequestService
	Listings    ListingsService
	Maintenance MaintenanceService
	Health      HealthChecker
}

// Server hosts the gin engine.
type Server struct {
	engine *gin.Engine
	server *http.Server
}

// NewServer builds the router and binds it to port.
func NewServer(port int, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	setupRoutes(engine, deps)

	return &Server{
		engine: engine,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func setupRoutes(engine *gin.Engine, deps Deps) {
	engine.GET("/health", handleHealth(deps.Health))
	engine.GET("/health/detailed", handleHealthDetailed(deps.Health))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	req := engine.Group("/requests")
	{
		req.GET("/status", handleRequestStatus(deps.Requests))
		req.GET("/search", handleSearch(deps.Requests))
		req.POST("/request", handleSubmit(deps.Requests))
		req.GET("/:mediaType/:mediaId", handleDetails(deps.Requests))
	}

	listings := engine.Group("/listings")
	{
		listings.GET("/countries", handleCountries(deps.Listings))
		listings.GET("/image-limit", handleImageLimit(deps.Listings))
		listings.GET("/image/*uri", handleImage(deps.Listings))
	}

	maint := engine.Group("/maintenance")
	{
		maint.POST("/chapter-images/run", handleRunTrigger(deps.Maintenance))
		maint.GET("/chapter-images", handleRunStatus(deps.Maintenance))
	}
}
