// Package server exposes stored analysis results over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fedpulse/fedpulse/internal/store"
	"github.com/fedpulse/fedpulse/models"
)

// Server serves the read API for narratives and topic groups.
type Server struct {
	echo   *echo.Echo
	store  *store.Store
	logger *log.Logger
}

// New builds the HTTP server over the given store.
func New(st *store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:   e,
		store:  st,
		logger: log.New(os.Stdout, "[SERVER] ", log.LstdFlags),
	}

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/narratives/latest", s.latestNarrative)
	api.GET("/narratives/:uuid", s.narrativeByUUID)
	api.GET("/topic-groups/latest", s.latestTopicGroup)
	api.GET("/topic-groups/:uuid", s.topicGroupByUUID)
	api.GET("/scheduler/next-run", s.nextRun)

	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start(address string) error {
	s.logger.Printf("listening on %s", address)
	return s.echo.Start(address)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.store.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) latestNarrative(c echo.Context) error {
	rec, err := s.store.LatestNarrative(c.Request().Context())
	return s.respond(c, rec, err)
}

func (s *Server) narrativeByUUID(c echo.Context) error {
	rec, err := s.store.NarrativeByUUID(c.Request().Context(), c.Param("uuid"))
	return s.respond(c, rec, err)
}

func (s *Server) latestTopicGroup(c echo.Context) error {
	rec, err := s.store.LatestTopicGroup(c.Request().Context())
	return s.respond(c, rec, err)
}

func (s *Server) topicGroupByUUID(c echo.Context) error {
	rec, err := s.store.TopicGroupByUUID(c.Request().Context(), c.Param("uuid"))
	return s.respond(c, rec, err)
}

func (s *Server) nextRun(c echo.Context) error {
	t, found, err := s.store.GetNextRunTime(c.Request().Context())
	if err != nil {
		return s.respond(c, nil, err)
	}
	if !found {
		return c.JSON(http.StatusOK, map[string]interface{}{"next_run": nil})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"next_run": t.UTC().Format(time.RFC3339)})
}

func (s *Server) respond(c echo.Context, body interface{}, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	if err != nil {
		s.logger.Printf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, body)
}
