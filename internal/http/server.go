// Package http serves a vector store over a JSON HTTP API.
package http

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

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// Store is the part of *vectorstore.Store the server uses.
type Store interface {
	Add(ctx context.Context, text string, metadata vectorstore.Filter) (uint64, error)
	GetNode(id uint64) (vectorstore.Node, error)
	Delete(ctx context.Context, id uint64) error
	Query(ctx context.Context, vector []float32, filters []vectorstore.Filter) ([]vectorstore.Node, error)
	QueryText(ctx context.Context, text string, filters []vectorstore.Filter) ([]vectorstore.Node, error)
	Search(ctx context.Context, text string) ([]vectorstore.Node, error)
	Persist(ctx context.Context, dir string) error
	Len() int
	Model() string
	Dimension() int
}

var _ Store = (*vectorstore.Store)(nil)

// Server provides HTTP endpoints for a vector store.
type Server struct {
	echo    *echo.Echo
	store   Store
	logger  *zap.Logger
	metrics *HTTPMetrics
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server. A nil metrics disables request metrics.
func NewServer(store Store, logger *zap.Logger, metrics *HTTPMetrics, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	if metrics != nil {
		e.Use(metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// resolve the status before logging it
				c.Error(err)
				err = nil
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		store:   store,
		logger:  logger,
		metrics: metrics,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// requestContext carries the request id into the request context so store
// logs can be correlated with the access log.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		}
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/nodes", s.handleAdd)
	v1.GET("/nodes/:id", s.handleGet)
	v1.DELETE("/nodes/:id", s.handleDelete)
	v1.POST("/query", s.handleQuery)
	v1.POST("/search", s.handleSearch)
	v1.POST("/persist", s.handlePersist)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Nodes:     s.store.Len(),
		Model:     s.store.Model(),
		Dimension: s.store.Dimension(),
	})
}

func (s *Server) handleAdd(c echo.Context) error {
	var req AddRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid add request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	id, err := s.store.Add(c.Request().Context(), req.Text, vectorstore.Filter{Key: req.Key, Value: req.Value})
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusCreated, AddResponse{ID: id})
}

func (s *Server) handleGet(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	n, err := s.store.GetNode(id)
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, toNodeResponse(n, true))
}

func (s *Server) handleDelete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := s.store.Delete(c.Request().Context(), id); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	var (
		nodes []vectorstore.Node
		err   error
	)
	switch {
	case len(req.Vector) > 0:
		nodes, err = s.store.Query(ctx, req.Vector, req.Filters)
	case req.Text != "" || len(req.Filters) > 0:
		nodes, err = s.store.QueryText(ctx, req.Text, req.Filters)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "one of text, vector or filters is required")
	}
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, toResultsResponse(nodes, req.IncludeEmbeddings))
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	nodes, err := s.store.Search(c.Request().Context(), req.Text)
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, toResultsResponse(nodes, req.IncludeEmbeddings))
}

func (s *Server) handlePersist(c echo.Context) error {
	if err := s.store.Persist(c.Request().Context(), ""); err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, PersistResponse{Nodes: s.store.Len()})
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return id, nil
}

// storeError maps a store error to an HTTP error.
func (s *Server) storeError(err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("store operation failed", zap.Int("status", status), zap.Error(err))
	}
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}

// StatusFor returns the HTTP status for a store error.
func StatusFor(err error) int {
	var perr *vectorstore.PersistenceError
	switch {
	case errors.Is(err, vectorstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, vectorstore.ErrDegenerateVector),
		errors.Is(err, vectorstore.ErrInvalidScore):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vectorstore.ErrEmbeddingFailed):
		return http.StatusBadGateway
	case errors.As(err, &perr):
		return http.StatusInternalServerError
	case errors.Is(err, vectorstore.ErrInvalidInput),
		errors.Is(err, vectorstore.ErrExtractionFailed),
		errors.Is(err, vectorstore.ErrChunkerUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
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
