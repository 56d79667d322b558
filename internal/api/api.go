// Package api serves the HTTP control surface for the router.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/facade"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

// Controller owns the /api/v1 routes.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	router  *facade.Facade
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *Controller) { c.metrics = h }
}

// WithLogger sets the API logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New registers the control routes on e.
func New(e *echo.Echo, router *facade.Facade, settings *conf.Settings, opts ...Option) *Controller {
	c := &Controller{
		Echo:     e,
		Group:    e.Group("/api/v1"),
		Settings: settings,
		router:   router,
		logger:   logging.ForService("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.GetHealth)

	c.Group.GET("/devices", c.GetDevices)
	c.Group.POST("/devices/refresh", c.RefreshDevices)

	c.Group.GET("/connections", c.GetConnections)
	c.Group.DELETE("/connections/:id", c.DeleteConnection)

	c.Group.GET("/routes", c.GetRoutes)
	c.Group.POST("/routes", c.CreateRoute)
	c.Group.DELETE("/routes", c.DeleteRoute)

	c.Group.GET("/endpoints/:direction", c.GetEndpoint)
	c.Group.PUT("/endpoints/:direction", c.PutEndpoint)

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics))
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse builds an error body with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID returns a short random id for matching responses
// to log lines.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes it as an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	c.logger.Warn("API error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())
	return ctx.JSON(code, resp)
}

// handleRoutingError maps a facade error onto a status code. The body
// carries the user message and the underlying cause separately.
func (c *Controller) handleRoutingError(ctx echo.Context, err error) error {
	code := facade.Code(err)
	status := statusFor(code)
	resp := NewErrorResponse(cause(err), err.Error(), status)
	resp.Reason = code

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	c.logger.Log(ctx.Request().Context(), level, "routing request rejected",
		"correlation_id", resp.CorrelationID,
		"reason", code,
		"error", resp.Error,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method)
	return ctx.JSON(status, resp)
}

func statusFor(code string) int {
	switch code {
	case facade.CodeUnknownDevice, facade.CodeNotFound:
		return http.StatusNotFound
	case facade.CodeDuplicateRoute, facade.CodeNotConstructed:
		return http.StatusConflict
	case facade.CodeConstructionFailed:
		return http.StatusUnprocessableEntity
	case facade.CodeDeviceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func cause(err error) error {
	var ue *facade.UserError
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
