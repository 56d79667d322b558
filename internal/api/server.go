package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/facade"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Server runs the control API until its context ends.
type Server struct {
	echo     *echo.Echo
	listen   string
	logger   *slog.Logger
	settings *conf.Settings
}

// NewServer builds the echo instance and registers the control routes.
func NewServer(settings *conf.Settings, router *facade.Facade, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	logger := logging.ForService("api")
	e.Logger = newEchoLogger(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"ip", v.RemoteIP)
			return nil
		},
	}))

	New(e, router, settings, append([]Option{WithLogger(logger)}, opts...)...)

	return &Server{
		echo:     e,
		listen:   settings.WebServer.Listen,
		logger:   logger,
		settings: settings,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "address", s.listen)
		errCh <- s.echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("listen", s.listen).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("control API shutdown incomplete", "error", err)
		return err
	}
	<-errCh
	s.logger.Info("control API stopped")
	return nil
}
