package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunSweep runs one sweeper pass on demand.
func (s *Server) RunSweep(c *gin.Context) {
	if s.sweeper == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if ok, retryAfter := s.triggerLimiter.Allow(c.Request.Context()); !ok {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	report, err := s.sweeper.RunOnce(c.Request.Context())
	if err != nil && len(report.Jobs) == 0 {
		AbortWithError(c, err)
		return
	}
	if err != nil {
		s.log.Warn("manual sweep finished with errors", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": report})
}
