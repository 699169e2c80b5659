package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func corsEcho(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       time.Minute,
	}))
	e.GET("/api/runs", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.OPTIONS("/api/runs", func(c echo.Context) error { return c.NoContent(http.StatusMethodNotAllowed) })
	return e
}

func serve(e *echo.Echo, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/runs", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowedOrigin(t *testing.T) {
	e := corsEcho("https://dash.example.com")

	rec := serve(e, http.MethodGet, "https://dash.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = serve(e, http.MethodOptions, "https://dash.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "60", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

func TestCORSOtherOrigin(t *testing.T) {
	e := corsEcho("https://dash.example.com")
	rec := serve(e, http.MethodGet, "https://evil.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))
}

func TestCORSWildcard(t *testing.T) {
	rec := serve(corsEcho("*"), http.MethodGet, "https://anything.test")
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
