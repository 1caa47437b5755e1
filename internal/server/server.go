// Package server exposes the memory layer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/reconcile"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Server provides the HTTP API over a memory.Service.
type Server struct {
	echo   *echo.Echo
	svc    *memory.Service
	logger *zap.Logger
	config config.ServerConfig
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(svc *memory.Service, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("memory service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		svc:    svc,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/add", s.handleAdd)
	s.echo.POST("/search", s.handleSearch)
	s.echo.GET("/memories", s.handleGetAll)
	s.echo.GET("/memories/:id", s.handleGet)
	s.echo.PUT("/memories/:id", s.handleUpdate)
	s.echo.DELETE("/memories/:id", s.handleDelete)
	s.echo.DELETE("/memories", s.handleDeleteAll)
	s.echo.POST("/reset", s.handleReset)
}

// AddRequest is the body for POST /add.
type AddRequest struct {
	Messages []extraction.Turn `json:"messages"`
	memory.ScopeIDs
	Infer      *bool                  `json:"infer"`
	MemoryType string                 `json:"memory_type,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchRequest is the body for POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	memory.ScopeIDs
	Limit   int                    `json:"limit,omitempty"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status     string                      `json:"status"`
	Collection *vectorstore.CollectionInfo `json:"collection,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	info, err := s.svc.Info(c.Request().Context())
	if err != nil {
		s.logger.Warn("health check store probe failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Collection: info})
}

// handleAdd ingests messages. Reconciliation decision failures degrade to
// an empty result list; only scope and validation errors reach the client.
func (s *Server) handleAdd(c echo.Context) error {
	var req AddRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages field is required")
	}

	infer := true
	if req.Infer != nil {
		infer = *req.Infer
	}

	actions, err := s.svc.Add(c.Request().Context(), req.Messages, req.ScopeIDs, memory.AddOptions{
		Infer:    infer,
		Subtype:  extraction.Subtype(req.MemoryType),
		Metadata: req.Metadata,
	})
	if err != nil {
		if errors.Is(err, memory.ErrNoScope) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if actions == nil && !infer {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to store memories")
		}
		// Partial reconciliation failures: return what was applied.
		s.logger.Warn("add completed with errors", zap.Error(err))
	}

	if actions == nil {
		actions = []reconcile.Action{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": actions})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	result, err := s.svc.Search(c.Request().Context(), req.Query, req.ScopeIDs, req.Limit, req.Filters)
	if err != nil {
		if errors.Is(err, memory.ErrNoScope) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetAll(c echo.Context) error {
	ids := scopeFromQuery(c)

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	var filters map[string]interface{}
	if t := c.QueryParam("type"); t != "" {
		filters = map[string]interface{}{"type": t}
	}

	result, err := s.svc.GetAll(c.Request().Context(), ids, limit, filters)
	if err != nil {
		if errors.Is(err, memory.ErrNoScope) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("list failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGet(c echo.Context) error {
	item, err := s.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "memory not found")
		}
		s.logger.Error("get failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "get failed")
	}
	return c.JSON(http.StatusOK, item)
}

// UpdateRequest is the body for PUT /memories/:id.
type UpdateRequest struct {
	Data string `json:"data"`
}

func (s *Server) handleUpdate(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Data == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "data field is required")
	}

	item, err := s.svc.Update(c.Request().Context(), c.Param("id"), req.Data)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "memory not found")
		}
		s.logger.Error("update failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleDelete(c echo.Context) error {
	if err := s.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "memory not found")
		}
		s.logger.Error("delete failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(c echo.Context) error {
	ids := scopeFromQuery(c)

	deleted, err := s.svc.DeleteAll(c.Request().Context(), ids)
	if err != nil {
		if errors.Is(err, memory.ErrNoScope) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("delete all failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "delete all failed")
	}

	return c.JSON(http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.svc.Reset(c.Request().Context()); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "reset failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}

func scopeFromQuery(c echo.Context) memory.ScopeIDs {
	return memory.ScopeIDs{
		UserID:  c.QueryParam("user_id"),
		AgentID: c.QueryParam("agent_id"),
		RunID:   c.QueryParam("run_id"),
		ActorID: c.QueryParam("actor_id"),
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
