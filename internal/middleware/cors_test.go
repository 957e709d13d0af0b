package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsRouter(origins string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(origins))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORS(t *testing.T) {
	send := func(r http.Handler, method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/health", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("preflight from listed origin", func(t *testing.T) {
		assert := assert.New(t)
		w := send(corsRouter("https://vote.example.com, https://admin.example.com"), http.MethodOptions, "https://vote.example.com")
		assert.Equal(http.StatusNoContent, w.Code)
		assert.Equal("https://vote.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal("Origin", w.Header().Get("Vary"))
		assert.Equal("GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal("Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
	})
	t.Run("listed origin echoed on normal request", func(t *testing.T) {
		w := send(corsRouter("https://vote.example.com/"), http.MethodGet, "https://vote.example.com")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://vote.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})
	t.Run("unlisted origin gets no allow header", func(t *testing.T) {
		w := send(corsRouter("https://vote.example.com"), http.MethodGet, "https://evil.example.com")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})
	t.Run("unlisted preflight still short-circuits", func(t *testing.T) {
		w := send(corsRouter("https://vote.example.com"), http.MethodOptions, "https://evil.example.com")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
	t.Run("wildcard", func(t *testing.T) {
		w := send(corsRouter("*"), http.MethodGet, "https://anywhere.example.com")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Vary"))
	})
	t.Run("empty list allows all", func(t *testing.T) {
		w := send(corsRouter(" "), http.MethodGet, "https://anywhere.example.com")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
