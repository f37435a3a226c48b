package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cryptostats/config"
	"cryptostats/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options carries the optional endpoints mounted next to the core API.
type Options struct {
	Metrics http.Handler // served at /metrics when set
	Feed    http.Handler // served at /ws when set
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler, opts Options, recorder *metrics.Recorder, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(recovery(logger), requestID(), requestLogger(logger, recorder))

	router.GET("/health", h.Health)
	router.GET("/stats", h.GetStats)
	router.GET("/deviation", h.GetDeviation)
	router.GET("/update", h.UpdateStats)
	router.POST("/update", h.UpdateStats)
	router.GET("/log", h.GetLog)

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.Feed != nil {
		router.GET("/ws", gin.WrapH(opts.Feed))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "not_found"})
	})
	return router
}

// Server owns the listening HTTP server.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(cfg config.HTTPConfig, router http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger: logger,
	}
}

// Start listens in the background. Errors other than a clean shutdown are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting connections and waits for active requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
