package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func corsServer(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		MaxAge:       time.Minute,
	}))
	e.GET("/api/status", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func corsRequest(e *echo.Echo, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/status", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	if preflight {
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSListedOrigin(t *testing.T) {
	e := corsServer("https://dash.local/")

	rec := corsRequest(e, http.MethodGet, "https://dash.local", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))

	rec = corsRequest(e, http.MethodOptions, "https://dash.local", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "60", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

func TestCORSUnlistedOrigin(t *testing.T) {
	e := corsServer("https://dash.local")

	rec := corsRequest(e, http.MethodGet, "https://evil.local", false)
	assert.Equal(t, http.StatusOK, rec.Code, "simple requests still reach the handler")
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = corsRequest(e, http.MethodOptions, "https://evil.local", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSOpenByDefault(t *testing.T) {
	e := corsServer()
	rec := corsRequest(e, http.MethodGet, "https://anything.local", false)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = corsRequest(e, http.MethodGet, "", false)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
