package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// IoTAPIKeyHeader carries the shared key that sensors present on ingestion
// requests.
const IoTAPIKeyHeader = "X-IoT-API-Key"

// SensorAuth rejects requests whose API key does not match the configured
// shared key. An empty configured key disables the routes entirely rather
// than leaving them open.
func SensorAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(IoTAPIKeyHeader)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Unauthorized: Invalid API key",
			})
			return
		}
		c.Next()
	}
}
