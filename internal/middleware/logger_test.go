package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerOmitsTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/polls/:token", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/polls/s3cr3t-token", "/polls/s3cr3t-token/nope", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "/polls/:token", entries[0].ContextMap()["path"])
	assert.Equal(t, "unmatched", entries[1].ContextMap()["path"])
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	for _, e := range entries {
		assert.NotContains(t, e.ContextMap()["path"], "s3cr3t")
	}
}
