package middlewares

import (
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request. 5xx responses are logged at error
// level with the gin errors attached.
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		entry := logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        time.Since(start).String(),
			"correlation_id": cid,
		})
		if c.Writer.Status() >= 500 {
			if len(c.Errors) > 0 {
				entry = entry.WithField("errors", c.Errors.String())
			}
			entry.Error("request")
			return
		}
		entry.Info("request")
	}
}
