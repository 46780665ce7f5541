package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/showrunner-io/showrunner/pkg/models"
)

// pendingSchedule handles GET /api/v1/schedule/pending.
func (s *Server) pendingSchedule(c *gin.Context) {
	jobs, err := s.deps.Schedules.GetPending(c.Request.Context())
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[models.ScheduledContent]{Items: jobs, Count: len(jobs)})
}

// upcomingSchedule handles GET /api/v1/schedule/upcoming?hours=.
func (s *Server) upcomingSchedule(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 24*14 {
			abortBadRequest(c, "hours must be between 1 and 336")
			return
		}
		hours = n
	}
	jobs, err := s.deps.Schedules.GetUpcoming(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		abortServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse[models.ScheduledContent]{Items: jobs, Count: len(jobs)})
}
