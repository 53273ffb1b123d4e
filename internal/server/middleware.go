package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/franz/bgdb/internal/util"
)

// RequestID tags each request with an id, reusing a well-formed incoming
// X-Request-ID header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Logger logs API requests at info level and everything else at debug
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start)

		path := c.Request.URL.Path
		log := util.DebugLog
		if strings.HasPrefix(path, "/api/") {
			log = util.InfoLog
		}
		log("HTTP %s %s %d %s id=%s client=%s",
			c.Request.Method, path, c.Writer.Status(), dur.Round(time.Microsecond),
			c.GetString(requestIDKey), c.ClientIP())
	}
}
