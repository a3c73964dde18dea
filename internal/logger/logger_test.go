package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupLevels(t *testing.T) {
	require.Equal(t, zerolog.WarnLevel, Setup("warn", false).GetLevel())
	require.Equal(t, zerolog.InfoLevel, Setup("nonsense", false).GetLevel())
	require.Equal(t, zerolog.InfoLevel, Setup("", false).GetLevel())
	require.Equal(t, zerolog.DebugLevel, Setup("info", true).GetLevel())
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := gin.New()
	r.Use(Gin(log))
	r.GET("/v1/ping", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside")
		c.Status(http.StatusTeapot)
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	require.Equal(t, http.StatusTeapot, w.Code)
	id := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var inside, done map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inside))
	require.NoError(t, json.Unmarshal(lines[1], &done))
	require.Equal(t, id, inside["request_id"])
	require.Equal(t, "/v1/ping", inside["path"])
	require.Equal(t, "warn", done["level"])
	require.EqualValues(t, http.StatusTeapot, done["status"])

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, buf.Len())
}

func TestGinKeepsValidRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Gin(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "3f0f6f2a-8a6e-4a57-9d59-1f0c55c0b0a1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "3f0f6f2a-8a6e-4a57-9d59-1f0c55c0b0a1", w.Header().Get(RequestIDHeader))
}
