package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applogger "AgriCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Name  string `json:"name" validate:"required"`
	Count *int   `json:"count" default:"3" validate:"required,gte=1"`
}

type testHandler struct{}

func (testHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/echo", func(c echo.Context) error {
		var req echoRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("no data for Potatoes in Nanjing"))
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("boom")
	})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewServer(testHandler{}, WithLogger(applogger.Nop()), WithMetrics("/metrics", reg, reg))
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestValidationAppliesDefaults(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, http.MethodPost, "/echo", `{"name":"Potatoes"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status int         `json:"status"`
		Data   echoRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, resp.Status)
	require.NotNil(t, resp.Data.Count)
	assert.Equal(t, 3, *resp.Data.Count)
}

func TestValidationErrorsUseRealStatus(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, http.MethodPost, "/echo", `{"count":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp APIResponse400Err
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	codes := map[string]string{}
	for _, e := range resp.Data {
		codes[e.Field] = e.Code
	}
	assert.Equal(t, "ERR_REQUIRED", codes["name"])
	assert.Equal(t, "ERR_GTE", codes["count"])
}

func TestAppErrorResponse(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestRecoverAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/panic",status="500"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/echo", nil)
	req.Header.Set(echo.HeaderOrigin, "https://agricast.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}
