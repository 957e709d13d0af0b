package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
	corsMaxAge  = "86400"
)

// originPolicy decides which browser origins may call the API.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

// newOriginPolicy parses "*" or a comma-separated origin list. An empty
// list allows every origin.
func newOriginPolicy(list string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{})}
	for _, o := range strings.Split(list, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed[o] = struct{}{}
		}
	}
	if len(p.allowed) == 0 {
		p.any = true
	}
	return p
}

// allow returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is refused.
func (p originPolicy) allow(origin string) string {
	if p.any {
		return "*"
	}
	if _, ok := p.allowed[origin]; ok && origin != "" {
		return origin
	}
	return ""
}

// CORS lets the voting frontend call the API from another origin.
// Preflight requests are answered with 204 and never reach the handlers.
func CORS(allowedOrigins string) gin.HandlerFunc {
	policy := newOriginPolicy(allowedOrigins)
	return func(c *gin.Context) {
		if !policy.any {
			c.Header("Vary", "Origin")
		}
		if v := policy.allow(c.GetHeader("Origin")); v != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", v)
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
