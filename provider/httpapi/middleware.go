package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/hypergrid-io/hypergrid/internal/httpmw"
)

func RequestIDMiddleware() gin.HandlerFunc { return httpmw.RequestID() }

func LoggingMiddleware() gin.HandlerFunc { return httpmw.Logging() }
