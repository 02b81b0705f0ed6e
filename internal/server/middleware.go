package server

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/util"
	funnelerrors "github.com/mapadna/oracle-funnel-go/pkg/errors"
)

// requestLogger records one structured line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", clientKey(c)),
		)
	}
}

// clientKey identifies one visitor for rate limiting. The IP alone is too
// coarse behind carrier NAT, so the frontend's session header is mixed in
// when present. Without it a truncated user agent has to do.
func clientKey(c *gin.Context) string {
	ip := c.ClientIP()

	if sessionID := c.GetHeader("X-Session-ID"); sessionID != "" {
		return fmt.Sprintf("%s|%s", ip, sessionID)
	}

	ua := util.TruncateString(c.Request.UserAgent(), 40)
	return fmt.Sprintf("%s|%s", ip, ua)
}

// rateLimitMiddleware guards the generation endpoint. Every response carries
// the X-RateLimit headers; a denied request gets a 429 with the reset time.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := s.limiter.Check(c.Request.Context(), clientKey(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", decision.ResetTime.UTC().Format(time.RFC3339))

		if !decision.Allowed {
			rlErr := funnelerrors.NewRateLimitError("Generation limit reached for this window", decision.Limit, decision.ResetTime)
			s.logger.Warn("rate limit exceeded",
				zap.String("client", clientKey(c)),
				zap.Time("reset", decision.ResetTime),
			)
			c.AbortWithStatusJSON(rlErr.StatusCode, gin.H{
				"error":     rlErr.Code,
				"message":   rlErr.Message,
				"resetTime": rlErr.ResetTime.UTC().Format(time.RFC3339),
				"remaining": 0,
			})
			return
		}

		c.Next()
	}
}
