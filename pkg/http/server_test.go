package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

type envelope struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Data    []ValidationError `json:"data"`
}

type pairQuery struct {
	Pair  string `query:"pair" validate:"required"`
	Limit int    `query:"limit" default:"10" validate:"lte=100"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(routes(func(e *echo.Echo) {
		e.GET("/conflict", func(c echo.Context) error {
			return AppErrorResponse(c, ConflictError("busy").WithError(errors.New("cycle c1")))
		})
		e.GET("/boom", func(c echo.Context) error {
			return errors.New("db password is hunter2")
		})
		e.GET("/pairs", func(c echo.Context) error {
			q := &pairQuery{}
			if verr := ReadAndValidateRequest(c, q); verr != nil {
				return BadRequestResponse(c, verr)
			}
			return SuccessResponse(c, q)
		})
	}), WithMetrics(prometheus.NewRegistry(), "/metrics"), WithCORS("*"))
}

func do(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get(echo.HeaderContentType) != "" && rec.Code != http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestServer_AppErrorKeepsStatusAndHidesCause(t *testing.T) {
	rec, env := do(t, newTestServer(t), http.MethodGet, "/conflict")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "ERR_CONFLICT", env.Data[0].Code)
	assert.NotContains(t, rec.Body.String(), "cycle c1")
}

func TestServer_UnknownErrorsBecomeOpaque500(t *testing.T) {
	rec, env := do(t, newTestServer(t), http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, env.Status)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestServer_RoutingErrorsUseEnvelope(t *testing.T) {
	rec, env := do(t, newTestServer(t), http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "ERR_NOT_FOUND", env.Data[0].Code)

	rec, env = do(t, newTestServer(t), http.MethodPost, "/boom")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "ERR_METHOD_NOT_ALLOWED", env.Data[0].Code)
}

func TestServer_ValidationUsesTagNamesAndDefaults(t *testing.T) {
	s := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/pairs?limit=500")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := []string{}
	for _, v := range env.Data {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{"pair", "limit"}, fields)

	rec, _ = do(t, s, http.MethodGet, "/pairs?pair=EUR/USD")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Limit":10`)
}

func TestServer_ServesMetrics(t *testing.T) {
	rec, _ := do(t, newTestServer(t), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_StartReportsBindErrors(t *testing.T) {
	s := NewServer(nil, WithHost("127.0.0.1"), WithPort(0))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	_, portStr, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	dup := NewServer(nil, WithHost("127.0.0.1"), WithPort(port))
	assert.Error(t, dup.Start())
}
