package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/audiocore/hosts/null"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/facade"
)

type testServer struct {
	host    *null.Host
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	host := null.NewDemo()
	registry := audiocore.NewDeviceRegistry(host)
	engine := audiocore.NewRoutingEngine(host, registry, audiocore.NewConnectionCatalog())
	t.Cleanup(func() { _ = engine.Close() })

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("routing_active_routes 0\n"))
	})
	s := NewServer(conf.Defaults(), facade.New(registry, engine), WithMetricsHandler(metrics))
	return &testServer{host: host, handler: s.Handler()}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 3, h.Devices)
	assert.Zero(t, h.Connections)
}

func TestGetDevices(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	tests := []struct {
		query string
		want  []string
		code  int
	}{
		{"", []string{"Null Microphone", "Null Speakers", "Null Duplex Interface"}, http.StatusOK},
		{"?direction=input", []string{"Null Microphone", "Null Duplex Interface"}, http.StatusOK},
		{"?direction=output", []string{"Null Speakers", "Null Duplex Interface"}, http.StatusOK},
		{"?direction=sideways", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/devices"+tt.query, "")
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			var names []string
			for _, d := range decode[[]audiocore.Device](t, rec) {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestRefreshDevicesSeesNewHardware(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/devices", "").Code)

	s.host.AddDevice(audiocore.DeviceDescriptor{ID: 7, Name: "USB Headset", InputStreams: 1, OutputStreams: 1})
	rec := s.do(t, http.MethodPost, "/api/v1/devices/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]audiocore.Device](t, rec), 4)
}

func TestRouteLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes", `{"source":"microphone","sink":"speakers"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	route := decode[RouteView](t, rec)
	assert.Equal(t, "active", route.State)
	assert.Equal(t, uint32(1), route.Source)
	assert.Equal(t, uint32(2), route.Sink)

	rec = s.do(t, http.MethodGet, "/api/v1/connections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	conns := decode[[]audiocore.ConnectionRecord](t, rec)
	require.Len(t, conns, 1)
	assert.Equal(t, "Null Microphone", conns[0].SourceName)

	rec = s.do(t, http.MethodPost, "/api/v1/routes", `{"source":"1","sink":"2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, facade.CodeDuplicateRoute, decode[ErrorResponse](t, rec).Reason)

	rec = s.do(t, http.MethodDelete, "/api/v1/routes?source=1&sink=2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/routes?source=1&sink=2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	routes := decode[[]RouteView](t, rec)
	require.Len(t, routes, 1)
	assert.Equal(t, "stopped", routes[0].State)
}

func TestCreateRouteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		setup  func(*null.Host)
		status int
		reason string
	}{
		{"missing sink", `{"source":"1"}`, nil, http.StatusBadRequest, ""},
		{"malformed body", `{"source":`, nil, http.StatusBadRequest, ""},
		{"unknown source", `{"source":"Turntable","sink":"2"}`, nil, http.StatusNotFound, facade.CodeUnknownDevice},
		{"host refuses", `{"source":"1","sink":"2"}`, func(h *null.Host) {
			h.FailConnect(errors.NewStd("no common format"))
		}, http.StatusUnprocessableEntity, facade.CodeConstructionFailed},
		{"playback busy", `{"source":"1","sink":"2"}`, func(h *null.Host) {
			h.FailPlayback(2, errors.NewStd("device busy"))
		}, http.StatusUnprocessableEntity, facade.CodeConstructionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t)
			if tt.setup != nil {
				tt.setup(s.host)
			}
			rec := s.do(t, http.MethodPost, "/api/v1/routes", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.status, resp.Code)
			assert.Len(t, resp.CorrelationID, 8)
			assert.NotEmpty(t, resp.Message)
			assert.Equal(t, tt.reason, resp.Reason)
		})
	}
}

func TestDeleteConnectionByID(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/routes", `{"source":"3","sink":"3"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[RouteView](t, rec).ID

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/api/v1/connections/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/connections/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/connections/"+id, "").Code)
}

func TestEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/endpoints/output", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ep := decode[EndpointResponse](t, rec)
	require.NotNil(t, ep.Device)
	assert.Equal(t, "Null Speakers", ep.Device.Name)

	rec = s.do(t, http.MethodPut, "/api/v1/endpoints/output", `{"device":"duplex"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ep = decode[EndpointResponse](t, rec)
	require.NotNil(t, ep.Device)
	assert.Equal(t, "Null Duplex Interface", ep.Device.Name)

	rec = s.do(t, http.MethodPut, "/api/v1/endpoints/input", `{"device":"Null Speakers"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/endpoints/input", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/endpoints/upward", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "routing_active_routes")
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(facade.CodeDeviceUnavailable))
	assert.Equal(t, http.StatusConflict, statusFor(facade.CodeNotConstructed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(facade.CodeInternal))
}
