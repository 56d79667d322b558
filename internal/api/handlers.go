package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
)

// HealthResponse reports liveness and a summary of routing state.
type HealthResponse struct {
	Status      string    `json:"status"`
	Name        string    `json:"name"`
	Devices     int       `json:"devices"`
	Connections int       `json:"connections"`
	Timestamp   time.Time `json:"timestamp"`
}

// GetHealth handles GET /api/v1/health.
func (c *Controller) GetHealth(ctx echo.Context) error {
	name := conf.AppName
	if c.Settings != nil && c.Settings.Main.Name != "" {
		name = c.Settings.Main.Name
	}
	return ctx.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Name:        name,
		Devices:     len(c.router.Devices(ctx.Request().Context())),
		Connections: len(c.router.Connections()),
		Timestamp:   time.Now(),
	})
}

// GetDevices handles GET /api/v1/devices[?direction=input|output].
func (c *Controller) GetDevices(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	dirParam := ctx.QueryParam("direction")
	if dirParam == "" {
		return ctx.JSON(http.StatusOK, c.router.Devices(reqCtx))
	}

	dir, err := audiocore.ParseDirection(dirParam)
	if err != nil {
		return c.HandleError(ctx, err, "direction must be input or output", http.StatusBadRequest)
	}
	if dir == audiocore.DirectionInput {
		return ctx.JSON(http.StatusOK, c.router.Inputs(reqCtx))
	}
	return ctx.JSON(http.StatusOK, c.router.Outputs(reqCtx))
}

// RefreshDevices handles POST /api/v1/devices/refresh.
func (c *Controller) RefreshDevices(ctx echo.Context) error {
	snap := c.router.Refresh(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, snap.Devices())
}

// GetConnections handles GET /api/v1/connections.
func (c *Controller) GetConnections(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.router.Connections())
}

// DeleteConnection handles DELETE /api/v1/connections/:id, where id is the
// route handle of the connection.
func (c *Controller) DeleteConnection(ctx echo.Context) error {
	h, err := audiocore.ParseRouteHandle(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "invalid connection id", http.StatusBadRequest)
	}
	for _, rec := range c.router.Connections() {
		if rec.Handle == h {
			if err := c.router.StopConnection(rec); err != nil {
				return c.handleRoutingError(ctx, err)
			}
			return ctx.NoContent(http.StatusNoContent)
		}
	}
	return c.HandleError(ctx, nil, "connection not found", http.StatusNotFound)
}

// RouteView is the JSON form of a route.
type RouteView struct {
	ID        string    `json:"id"`
	Source    uint32    `json:"source"`
	Sink      uint32    `json:"sink"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

func newRouteView(r audiocore.Route) RouteView {
	v := RouteView{
		ID:        r.Handle.String(),
		Source:    uint32(r.Key.Source),
		Sink:      uint32(r.Key.Sink),
		State:     r.State.String(),
		CreatedAt: r.CreatedAt,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

// GetRoutes handles GET /api/v1/routes, including recently ended routes.
func (c *Controller) GetRoutes(ctx echo.Context) error {
	routes := c.router.Routes()
	out := make([]RouteView, 0, len(routes))
	for _, r := range routes {
		out = append(out, newRouteView(r))
	}
	return ctx.JSON(http.StatusOK, out)
}

// RouteRequest names the two ends of a cable by name or id.
type RouteRequest struct {
	Source string `json:"source"`
	Sink   string `json:"sink"`
}

// CreateRoute handles POST /api/v1/routes.
func (c *Controller) CreateRoute(ctx echo.Context) error {
	var req RouteRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	req.Source = strings.TrimSpace(req.Source)
	req.Sink = strings.TrimSpace(req.Sink)
	if req.Source == "" || req.Sink == "" {
		return c.HandleError(ctx, nil, "source and sink are required", http.StatusBadRequest)
	}

	r, err := c.router.RequestRoute(ctx.Request().Context(), req.Source, req.Sink)
	if err != nil {
		return c.handleRoutingError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, newRouteView(r))
}

// DeleteRoute handles DELETE /api/v1/routes?source=&sink=.
func (c *Controller) DeleteRoute(ctx echo.Context) error {
	source := strings.TrimSpace(ctx.QueryParam("source"))
	sink := strings.TrimSpace(ctx.QueryParam("sink"))
	if source == "" || sink == "" {
		return c.HandleError(ctx, nil, "source and sink are required", http.StatusBadRequest)
	}
	if err := c.router.StopRoute(ctx.Request().Context(), source, sink); err != nil {
		return c.handleRoutingError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// EndpointRequest selects the device for a direction.
type EndpointRequest struct {
	Device string `json:"device"`
}

// EndpointResponse describes the device serving a direction.
type EndpointResponse struct {
	Direction string            `json:"direction"`
	Device    *audiocore.Device `json:"device"`
}

func (c *Controller) parseDirection(ctx echo.Context) (audiocore.Direction, error) {
	return audiocore.ParseDirection(ctx.Param("direction"))
}

// GetEndpoint handles GET /api/v1/endpoints/:direction.
func (c *Controller) GetEndpoint(ctx echo.Context) error {
	dir, err := c.parseDirection(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "direction must be input or output", http.StatusBadRequest)
	}
	resp := EndpointResponse{Direction: dir.String()}
	if d, ok := c.router.ActiveEndpoint(ctx.Request().Context(), dir); ok {
		resp.Device = &d
	}
	return ctx.JSON(http.StatusOK, resp)
}

// PutEndpoint handles PUT /api/v1/endpoints/:direction.
func (c *Controller) PutEndpoint(ctx echo.Context) error {
	dir, err := c.parseDirection(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "direction must be input or output", http.StatusBadRequest)
	}
	var req EndpointRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if strings.TrimSpace(req.Device) == "" {
		return c.HandleError(ctx, nil, "device is required", http.StatusBadRequest)
	}
	if err := c.router.SetDefault(ctx.Request().Context(), dir, req.Device); err != nil {
		return c.handleRoutingError(ctx, err)
	}
	return c.GetEndpoint(ctx)
}
