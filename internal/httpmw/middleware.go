// Package httpmw holds the gin middleware shared by the operator and
// provider HTTP surfaces, grounded on
// services/facilitator/internal/server/middleware.go.
package httpmw

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = strconv.FormatInt(time.Now().UnixNano(), 36)
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		requestID, _ := c.Get("request_id")
		log.Printf("[%v] %s %s %d %v", requestID, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
