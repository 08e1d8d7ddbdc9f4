package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSetupDevMode(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	logger, err := Setup(true, "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, logger, zap.L())
}

func TestSetupProdMode(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	logger, err := Setup(false, "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func testRouter(status int) (*gin.Engine, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	handler := func(c *gin.Context) { c.Status(status) }
	r.GET("/api/visits", handler)
	r.GET("/health", handler)
	r.GET("/metrics", handler)
	return r, logs
}

func TestRequestLogger(t *testing.T) {
	r, logs := testRouter(http.StatusOK)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/visits", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/visits", fields["path"])
	assert.Equal(t, int64(200), fields["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), fields["request_id"])
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	r, logs := testRouter(http.StatusOK)

	req := httptest.NewRequest("GET", "/api/visits", nil)
	req.Header.Set(RequestIDHeader, "desk-7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "desk-7", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "desk-7", logs.All()[0].ContextMap()["request_id"])
}

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		want   zapcore.Level
	}{
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusInternalServerError, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		r, logs := testRouter(tt.status)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/visits", nil))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, tt.want, logs.All()[0].Level)
	}
}

func TestRequestLoggerSkipsHealthAndMetrics(t *testing.T) {
	r, logs := testRouter(http.StatusOK)

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	}
	assert.Equal(t, 0, logs.Len())
}
