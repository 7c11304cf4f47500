package middlewares

import (
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const CorrelationHeader = "x-correlation-id"

// CorrelationMiddleware puts the caller's correlation id, or a fresh one, on
// the request context and echoes it in the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(CorrelationHeader, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}
