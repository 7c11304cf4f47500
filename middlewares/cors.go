package middlewares

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Cors allows every origin outside production. In production only the
// comma-separated allowedOrigins are accepted; an empty list rejects all
// cross-origin calls.
func Cors(production bool, allowedOrigins string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if production {
		corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", CorrelationHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return cors.New(corsConfig)
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
