package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// apiKeyContextKey is where Auth stores the caller's key for RateLimit.
const apiKeyContextKey = "api_key"

// Auth rejects requests that do not present one of apiKeys in X-API-Key or
// as an Authorization bearer token. Blank keys are ignored; with none left
// every request is let through.
func Auth(apiKeys []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			allowed[k] = true
		}
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}

		key, ok := callerKey(c.Request.Header)
		switch {
		case !ok:
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized,
				"missing API key: send X-API-Key or Authorization: Bearer <key>")
		case !allowed[key]:
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "invalid API key")
		default:
			c.Set(apiKeyContextKey, key)
			c.Next()
		}
	}
}

func callerKey(h http.Header) (string, bool) {
	if key := h.Get("X-API-Key"); key != "" {
		return key, true
	}
	key, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer ")
	return key, ok && key != ""
}

func abort(c *gin.Context, status int, code, message string) {
	detail := models.NewScrapeError(code, message, nil).ToDetail()
	c.AbortWithStatusJSON(status, models.RunResponse{Success: false, Error: detail})
}
