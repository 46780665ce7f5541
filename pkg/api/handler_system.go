package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/version"
)

// healthHandler handles GET /health. Only the daemon's own database is
// checked; external surfaces (Twitter, Slack, the model API) are
// excluded so a third-party outage never makes a supervisor restart us.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := s.deps.DB.Health(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, healthResponse{
			Status:   "unhealthy",
			Version:  version.GitCommit,
			Database: dbHealth,
			Error:    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:   "healthy",
		Version:  version.GitCommit,
		Database: dbHealth,
	})
}

// todayPlan handles GET /api/v1/plan/today.
func (s *Server) todayPlan(c *gin.Context) {
	plan, err := s.deps.Plans.PlanForDate(c.Request.Context(), time.Now())
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// killSwitchState handles GET /api/v1/killswitch.
func (s *Server) killSwitchState(c *gin.Context) {
	state, err := s.deps.KillSwitch.State(c.Request.Context())
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// listDigests handles GET /api/v1/digests?limit=.
func (s *Server) listDigests(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortBadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	digests, err := s.deps.Research.RecentDigests(c.Request.Context(), limit)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[*models.Digest]{Items: digests, Count: len(digests)})
}

// systemStatus handles GET /api/v1/system/status.
func (s *Server) systemStatus(c *gin.Context) {
	if s.deps.Status == nil {
		c.JSON(http.StatusOK, SystemStatus{Version: version.GitCommit})
		return
	}
	c.JSON(http.StatusOK, s.deps.Status.SystemStatus(c.Request.Context()))
}
