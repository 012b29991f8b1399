package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hypergrid-io/hypergrid/internal/httpmw"
)

// RequestIDMiddleware and LoggingMiddleware are grounded directly on
// services/facilitator/internal/server/middleware.go, shared with
// provider/httpapi via internal/httpmw.
func RequestIDMiddleware() gin.HandlerFunc { return httpmw.RequestID() }

func LoggingMiddleware() gin.HandlerFunc { return httpmw.Logging() }

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID, X-Client-ID, X-Token, X-Owner-Token")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OwnerAuthMiddleware gates the owner-only surface (§6: /api/mcp,
// /api/configure-authorized-client) behind a shared secret header. The
// teacher's own gin middleware defers bearer verification to the t402 SDK
// rather than implementing a session/cookie system itself; we follow the
// same "single shared secret, compared once" shape rather than inventing a
// cookie/session store no example repo carries.
func OwnerAuthMiddleware(ownerToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ownerToken == "" || c.GetHeader("X-Owner-Token") != ownerToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "owner authentication required"})
			return
		}
		c.Next()
	}
}
