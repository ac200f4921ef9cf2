// Package api serves the usage ledger over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/account"
	"github.com/resumeassist/usagegate/pkg/config"
	"github.com/resumeassist/usagegate/pkg/gateway"
)

// Ledger is the usage ledger as seen by the HTTP handlers.
type Ledger interface {
	CheckAndConsume(ctx context.Context, userID string, cost int64) (bool, error)
	GetUsage(ctx context.Context, userID string) (int64, error)
}

// Deps are the collaborators a Server routes to. Accounts, Gateway and
// Metrics are optional.
type Deps struct {
	Ledger   Ledger
	Accounts account.Store
	Gateway  *gateway.Gateway
	Metrics  http.Handler
	Logger   *zap.Logger
}

// Server is the usagegate HTTP API.
type Server struct {
	cfg     *config.Config
	deps    Deps
	logger  *zap.Logger
	echo    *echo.Echo
	limiter *RateLimiter
}

// New creates a Server with all routes and middleware registered.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg.RateLimit.TrustedProxies)

	s := &Server{cfg: cfg, deps: deps, logger: logger, echo: e}

	e.Use(recoverMiddleware(logger))
	e.Use(requestIDMiddleware())
	e.Use(accessLogMiddleware(logger))
	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		e.Use(rateLimitMiddleware(s.limiter))
	}

	e.GET("/health", s.handleHealth)
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	g := e.Group("/api")
	g.POST("/usage/check", s.handleCheck)
	g.POST("/usage", s.handleUsage)
	g.GET("/usage/limit", s.handleLimit)
	if deps.Accounts != nil {
		g.POST("/user/init", s.handleUserInit)
		g.POST("/joined", s.handleJoined)
	}
	if deps.Gateway != nil {
		g.Any("/features/:feature", s.handleFeature)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down gracefully when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	defer s.Close()
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("usagegate listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close stops background goroutines.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
