package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/markwatch/internal/db"
	"horse.fit/markwatch/internal/globaltime"
	"horse.fit/markwatch/internal/scan"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxBodyBytes    = 8 << 20
)

type scanCoordinator interface {
	StartScan(ctx context.Context, req scan.ScanRequest) (string, error)
	Progress(ctx context.Context, jobID string) (scan.JobProgress, error)
}

type shardRunner interface {
	Run(ctx context.Context, req scan.WorkerRequest) (scan.WorkerResult, error)
}

type hitReader interface {
	ListSimilarityHits(ctx context.Context, jobID string, limit, offset int) ([]db.SimilarityHit, int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the API. *db.Pool serves Hits and DB.
type Deps struct {
	Coordinator scanCoordinator
	Worker      shardRunner
	Hits        hitReader
	DB          pinger
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// WorkerTimeout bounds a shard invocation received over HTTP.
	WorkerTimeout time.Duration
}

type Server struct {
	deps   Deps
	logger zerolog.Logger
	opts   Options
}

func NewServer(deps Deps, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	workerTimeout := opts.WorkerTimeout
	if workerTimeout <= 0 {
		workerTimeout = scan.DefaultInvocationTimeout
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= workerTimeout {
		writeTimeout = workerTimeout + 10*time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		deps:   deps,
		logger: logger.With().Str("component", "httpapi").Logger(),
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			WorkerTimeout:   workerTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.deps.Coordinator == nil || s.deps.Worker == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.newEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("markwatch api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("markwatch api server stopped")
	return nil
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", maxBodyBytes)))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.POST("/scans", s.handleScan)
	api.GET("/scans/:job_id", s.handleScanProgress)
	api.GET("/scans/:job_id/hits", s.handleScanHits)
	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(c.Request().Context()); err != nil {
			s.logger.Error().Err(err).Msg("database ping failed")
			return c.JSON(http.StatusServiceUnavailable, jsendResponse{
				Status:  "error",
				Message: "Database unavailable",
				Code:    http.StatusServiceUnavailable,
			})
		}
	}
	return success(c, map[string]any{
		"service": "markwatch",
		"time":    globaltime.UTC(),
	})
}
